package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	_ "modernc.org/sqlite"

	"contestbot/internal/model"
)

//go:embed migrations
var migrationsFS embed.FS

var ErrNilDB = errors.New("db cannot be nil")

// InsertResult is the outcome of CheckAndInsert.
type InsertResult int

const (
	Inserted InsertResult = iota + 1
	Conflict
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Repository interface {
	// CheckAndInsert writes p unless a record for p.ParticipantID already
	// exists. When inserted, settings is written in the same transaction.
	CheckAndInsert(ctx context.Context, p *model.Participant, settings model.Settings) (InsertResult, error)
	HasParticipant(ctx context.Context, participantID int64) (bool, error)
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	CountParticipants(ctx context.Context) (int, error)

	LoadSettings(ctx context.Context) (model.Settings, bool, error)
	SaveSettings(ctx context.Context, s model.Settings) error
	PurgeExpiredChannels(ctx context.Context, now time.Time) (int64, error)

	MigrateUp(ctx context.Context) error
	Close() error
}

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

// querier is satisfied by both *sql.DB and *dbpg.DB.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repository struct {
	master  *sql.DB
	reader  querier
	dialect dialect
	log     *zerolog.Logger
}

// NewRepository wraps a postgres connection set.
func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil || db.Master == nil {
		return nil, ErrNilDB
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{master: db.Master, reader: db, dialect: dialectPostgres, log: log}, nil
}

// OpenSQLite opens (creating if needed) an embedded database file.
func OpenSQLite(filePath string, log *zerolog.Logger) (Repository, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filePath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer connection; transactions queue on the pool instead of SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &repository{master: db, reader: db, dialect: dialectSQLite, log: log}, nil
}

func (r *repository) Close() error {
	return r.master.Close()
}

// MigrateUp applies every embedded *.up.sql file for the active dialect in
// name order. Statements are idempotent.
func (r *repository) MigrateUp(ctx context.Context) error {
	dir := path.Join("migrations", string(r.dialect))
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := fs.ReadFile(migrationsFS, path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.master.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Str("dialect", string(r.dialect)).Int("files", len(files)).Msg("migrations applied")
	return nil
}

// q rewrites ? placeholders to $n for postgres.
func (r *repository) q(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *repository) CheckAndInsert(ctx context.Context, p *model.Participant, settings model.Settings) (InsertResult, error) {
	tx, err := r.master.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			panic(rec)
		}
	}()

	res, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO participants (participant_id, display_name, team_name, photo_ref, ticket_number, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO NOTHING
	`), p.ParticipantID, p.DisplayName, p.TeamName, p.PhotoRef, p.TicketNumber, p.CommittedAt.UTC().UnixMilli())
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to insert participant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return Conflict, nil
	}

	if err := r.saveSettingsTx(ctx, tx, settings); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return Inserted, nil
}

func (r *repository) HasParticipant(ctx context.Context, participantID int64) (bool, error) {
	var one int
	err := r.master.QueryRowContext(ctx, r.q(`SELECT 1 FROM participants WHERE participant_id = ?`), participantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return true, nil
}

func (r *repository) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	rows, err := r.reader.QueryContext(ctx, `
		SELECT participant_id, display_name, team_name, photo_ref, ticket_number, committed_at
		FROM participants
		ORDER BY committed_at ASC, participant_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var (
			p         model.Participant
			committed int64
		)
		if err := rows.Scan(&p.ParticipantID, &p.DisplayName, &p.TeamName, &p.PhotoRef, &p.TicketNumber, &committed); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.CommittedAt = time.UnixMilli(committed).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) CountParticipants(ctx context.Context) (int, error) {
	var count int
	if err := r.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func (r *repository) LoadSettings(ctx context.Context) (model.Settings, bool, error) {
	var (
		s      model.Settings
		endsAt sql.NullInt64
	)
	err := r.master.QueryRowContext(ctx, `
		SELECT contest_open, contest_ends_at, next_ticket FROM contest_settings WHERE id = 1
	`).Scan(&s.Window.Open, &endsAt, &s.NextTicket)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("failed to load settings: %w", err)
	}
	s.Window.EndsAt = fromMillis(endsAt)

	rows, err := r.master.QueryContext(ctx, `SELECT channel, expires_at FROM promo_channels ORDER BY position ASC`)
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("failed to load promo channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ch      model.PromoChannel
			expires sql.NullInt64
		)
		if err := rows.Scan(&ch.Channel, &expires); err != nil {
			return model.Settings{}, false, fmt.Errorf("failed to scan promo channel: %w", err)
		}
		ch.ExpiresAt = fromMillis(expires)
		s.PromoChannels = append(s.PromoChannels, ch)
	}
	if err := rows.Err(); err != nil {
		return model.Settings{}, false, fmt.Errorf("failed to read promo channels: %w", err)
	}
	return s, true, nil
}

// SaveSettings rewrites the whole settings document.
func (r *repository) SaveSettings(ctx context.Context, s model.Settings) error {
	tx, err := r.master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			panic(rec)
		}
	}()

	if err := r.saveSettingsTx(ctx, tx, s); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) saveSettingsTx(ctx context.Context, tx *sql.Tx, s model.Settings) error {
	_, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO contest_settings (id, contest_open, contest_ends_at, next_ticket)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			contest_open = excluded.contest_open,
			contest_ends_at = excluded.contest_ends_at,
			next_ticket = excluded.next_ticket
	`), s.Window.Open, toMillis(s.Window.EndsAt), s.NextTicket)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM promo_channels`); err != nil {
		return fmt.Errorf("failed to clear promo channels: %w", err)
	}
	for i, ch := range s.PromoChannels {
		if _, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO promo_channels (channel, position, expires_at) VALUES (?, ?, ?)
		`), ch.Channel, i, toMillis(ch.ExpiresAt)); err != nil {
			return fmt.Errorf("failed to save promo channel %s: %w", ch.Channel, err)
		}
	}
	return nil
}

func (r *repository) PurgeExpiredChannels(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.master.ExecContext(ctx, r.q(`
		DELETE FROM promo_channels WHERE expires_at IS NOT NULL AND expires_at <= ?
	`), now.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired channels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("purged", n).Msg("expired promo channels purged")
	}
	return n, nil
}

func toMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
