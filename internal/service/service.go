package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"contestbot/internal/admin"
	"contestbot/internal/dto"
	"contestbot/internal/model"
	"contestbot/internal/telegram"
	"contestbot/pkg/validator"
)

// WebhookSecretHeader carries the secret_token configured with setWebhook.
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Service interface {
	Status(ctx *ginext.Context)
	OpenContest(ctx *ginext.Context)
	CloseContest(ctx *ginext.Context)
	ListChannels(ctx *ginext.Context)
	AddChannel(ctx *ginext.Context)
	RemoveChannel(ctx *ginext.Context)
	ResetTicketFloor(ctx *ginext.Context)
	ListParticipants(ctx *ginext.Context)
	ReceiveUpdate(ctx *ginext.Context)
}

// ControlPlane is the admin surface the HTTP API drives.
type ControlPlane interface {
	Status(ctx context.Context) (admin.Status, error)
	OpenContest(ctx context.Context, d *time.Duration) (model.ContestWindow, error)
	CloseContest(ctx context.Context) error
	AddPromoChannel(ctx context.Context, raw string, ttl *time.Duration) (model.PromoChannel, error)
	RemovePromoChannel(ctx context.Context, raw string) error
	ResetTicketFloor(ctx context.Context, value int64) error
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	ListPromoChannels(ctx context.Context) []model.PromoChannel
}

type Options struct {
	// Sink receives webhook updates; nil disables the webhook.
	Sink telegram.Sink
	// API answers callback queries of webhook updates; may be nil.
	API *telegram.Client
	// WebhookSecret must match the secret header; empty rejects all updates.
	WebhookSecret string
}

type service struct {
	cp   ControlPlane
	opts Options
	log  *zerolog.Logger
}

func NewService(cp ControlPlane, opts Options, logger *zerolog.Logger) Service {
	return &service{
		cp:   cp,
		opts: opts,
		log:  logger,
	}
}

func (s *service) Status(ctx *ginext.Context) {
	st, err := s.cp.Status(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read contest status")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.StatusResponse{
		Open:         st.Open,
		EndsAt:       st.EndsAt,
		NextTicket:   st.NextTicket,
		Participants: st.Participants,
		Channels:     channelResponses(st.Channels),
	})
}

func (s *service) OpenContest(ctx *ginext.Context) {
	var req dto.OpenContestRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
			return
		}
	}

	var d *time.Duration
	if strings.TrimSpace(req.Duration) != "" {
		parsed, err := admin.ParseDuration(req.Duration)
		if err != nil {
			dto.FieldBadFormatError(ctx, "duration")
			return
		}
		d = parsed
	}

	window, err := s.cp.OpenContest(ctx.Request.Context(), d)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to open contest")
		s.mutationError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.ContestWindowResponse{Open: window.Open, EndsAt: window.EndsAt})
}

func (s *service) CloseContest(ctx *ginext.Context) {
	if err := s.cp.CloseContest(ctx.Request.Context()); err != nil {
		s.log.Error().Err(err).Msg("failed to close contest")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.ContestWindowResponse{Open: false})
}

func (s *service) ListChannels(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, channelResponses(s.cp.ListPromoChannels(ctx.Request.Context())))
}

func (s *service) AddChannel(ctx *ginext.Context) {
	var req dto.AddChannelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	var ttl *time.Duration
	if strings.TrimSpace(req.TTL) != "" {
		parsed, err := admin.ParseDuration(req.TTL)
		if err != nil {
			dto.FieldBadFormatError(ctx, "ttl")
			return
		}
		ttl = parsed
	}

	ch, err := s.cp.AddPromoChannel(ctx.Request.Context(), req.Channel, ttl)
	if err != nil {
		s.log.Error().Err(err).Str("channel", req.Channel).Msg("failed to add promo channel")
		s.mutationError(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, channelResponse(ch))
}

func (s *service) RemoveChannel(ctx *ginext.Context) {
	err := s.cp.RemovePromoChannel(ctx.Request.Context(), ctx.Param("channel"))
	switch {
	case err == nil:
		dto.SuccessResponse(ctx, nil)
	case errors.Is(err, admin.ErrChannelNotFound):
		dto.ChannelNotFoundError(ctx)
	default:
		s.log.Error().Err(err).Msg("failed to remove promo channel")
		s.mutationError(ctx, err)
	}
}

func (s *service) ResetTicketFloor(ctx *ginext.Context) {
	var req dto.TicketFloorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Value == nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, validator.ErrFieldRequired+": value")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.cp.ResetTicketFloor(ctx.Request.Context(), *req.Value); err != nil {
		s.log.Error().Err(err).Int64("value", *req.Value).Msg("failed to reset ticket floor")
		s.mutationError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, req)
}

func (s *service) ListParticipants(ctx *ginext.Context) {
	list, err := s.cp.ListParticipants(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list participants")
		dto.InternalServerError(ctx)
		return
	}
	resp := make([]dto.ParticipantResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, dto.ParticipantResponse{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			TeamName:      p.TeamName,
			TicketNumber:  p.TicketNumber,
			CommittedAt:   p.CommittedAt,
		})
	}
	dto.SuccessResponse(ctx, resp)
}

// ReceiveUpdate is the Bot API webhook. It answers 200 as soon as the
// update is queued; processing happens on the dispatcher.
func (s *service) ReceiveUpdate(ctx *ginext.Context) {
	if s.opts.Sink == nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Webhook intake is disabled")
		return
	}
	got := ctx.GetHeader(WebhookSecretHeader)
	if s.opts.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
		dto.UnauthorizedError(ctx)
		return
	}

	var u telegram.Update
	if err := ctx.ShouldBindJSON(&u); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	telegram.HandleUpdate(ctx.Request.Context(), s.opts.API, s.opts.Sink, u, s.log)
	dto.SuccessResponse(ctx, nil)
}

func (s *service) mutationError(ctx *ginext.Context, err error) {
	if errors.Is(err, admin.ErrInvalidInput) {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return
	}
	dto.InternalServerError(ctx)
}

func channelResponses(channels []model.PromoChannel) []dto.PromoChannelResponse {
	out := make([]dto.PromoChannelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelResponse(ch))
	}
	return out
}

func channelResponse(ch model.PromoChannel) dto.PromoChannelResponse {
	return dto.PromoChannelResponse{
		Channel:   ch.Channel,
		Link:      model.JoinLink(ch.Channel),
		ExpiresAt: ch.ExpiresAt,
	}
}
