package buildCFG

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	InboundPolling = "polling"
	InboundWebhook = "webhook"
	InboundQueue   = "queue"
)

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	// InsecureAdmin serves /v1/admin without API keys.
	InsecureAdmin bool
}

type StorageConfig struct {
	Driver     string
	SQLitePath string
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

type BotConfig struct {
	AdminID       int64
	OperatorID    int64
	APIURL        string
	PollTimeout   time.Duration
	Inbound       string
	ContestTitle  string
	Footer        string
	InitialTicket int64

	GateConcurrency int
	GateTimeout     time.Duration
}

// Secrets come from the environment only.
type Secrets struct {
	BotToken      string   `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	WebhookSecret string   `env:"TELEGRAM_WEBHOOK_SECRET"`
	AdminAPIKeys  []string `env:"ADMIN_API_KEYS" envSeparator:","`
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, using 8080")
	}
	timeout := cfg.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	insecure := cfg.GetBool("server.insecure_admin")
	if insecure {
		log.Warn().Msg("server.insecure_admin set, admin API is unauthenticated")
	}
	return ServerConfig{Port: port, ShutdownTimeout: timeout, InsecureAdmin: insecure}
}

func BuildStorageConfig(cfg *config.Config, log *zerolog.Logger) (StorageConfig, error) {
	sc := StorageConfig{
		Driver:     strings.ToLower(cfg.GetString("storage.driver")),
		SQLitePath: cfg.GetString("storage.sqlite_path"),
	}
	if sc.Driver == "" {
		sc.Driver = DriverSQLite
	}
	switch sc.Driver {
	case DriverSQLite:
		if sc.SQLitePath == "" {
			sc.SQLitePath = "contest.db"
			log.Warn().Str("path", sc.SQLitePath).Msg("storage.sqlite_path not set, using default")
		}
	case DriverPostgres:
	default:
		return StorageConfig{}, fmt.Errorf("unknown storage.driver %q", sc.Driver)
	}
	return sc, nil
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("database.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	log.Info().Int("slaves", len(slaveDSNs)).Int("max_open_conns", opts.MaxOpenConns).Msg("database config loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbitmq.enabled"),
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("RabbitMQ disabled")
		return rc, nil
	}
	if rc.Url == "" {
		return RabbitConfig{}, errors.New("rabbitmq.url is required when rabbitmq is enabled")
	}
	if rc.Exchange == "" {
		rc.Exchange = "contest"
	}
	return rc, nil
}

func BuildBotConfig(cfg *config.Config, log *zerolog.Logger) (BotConfig, error) {
	bc := BotConfig{
		AdminID:         int64(cfg.GetInt("bot.admin_id")),
		OperatorID:      int64(cfg.GetInt("bot.operator_id")),
		APIURL:          cfg.GetString("bot.api_url"),
		PollTimeout:     cfg.GetDuration("bot.poll_timeout"),
		Inbound:         strings.ToLower(cfg.GetString("bot.inbound")),
		ContestTitle:    cfg.GetString("bot.contest_title"),
		Footer:          cfg.GetString("bot.footer"),
		InitialTicket:   int64(cfg.GetInt("bot.initial_ticket")),
		GateConcurrency: cfg.GetInt("gate.concurrency"),
		GateTimeout:     cfg.GetDuration("gate.timeout"),
	}
	if bc.OperatorID == 0 {
		bc.OperatorID = bc.AdminID
	}
	if bc.OperatorID == 0 {
		return BotConfig{}, errors.New("bot.operator_id or bot.admin_id is required")
	}
	if bc.Inbound == "" {
		bc.Inbound = InboundPolling
	}
	switch bc.Inbound {
	case InboundPolling, InboundWebhook, InboundQueue:
	default:
		return BotConfig{}, fmt.Errorf("unknown bot.inbound %q", bc.Inbound)
	}
	if bc.InitialTicket <= 0 {
		bc.InitialTicket = 1
	}
	if bc.AdminID == 0 {
		log.Warn().Msg("bot.admin_id not set, chat administration disabled")
	}
	return bc, nil
}

func BuildSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// CheckAccess refuses configurations that expose the webhook or the admin
// API without credentials.
func CheckAccess(server ServerConfig, bot BotConfig, s Secrets) error {
	if bot.Inbound == InboundWebhook && s.WebhookSecret == "" {
		return errors.New("bot.inbound=webhook requires TELEGRAM_WEBHOOK_SECRET")
	}
	if len(s.AdminAPIKeys) == 0 && !server.InsecureAdmin {
		return errors.New("ADMIN_API_KEYS is empty; set keys or server.insecure_admin: true")
	}
	return nil
}
