package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	ChannelNotFound = "CHANNEL_NOT_FOUND"
	Unauthorized    = "UNAUTHORIZED"
)

type OpenContestRequest struct {
	// Duration such as "3 kun", "12h" or "indefinite". Empty means indefinite.
	Duration string `json:"duration"`
}

type AddChannelRequest struct {
	Channel string `json:"channel" validate:"required,channel"`
	TTL     string `json:"ttl"`
}

// TicketFloorRequest carries the next ticket to issue; zero is allowed.
type TicketFloorRequest struct {
	Value *int64 `json:"value" validate:"omitempty,gte=0"`
}

type ContestWindowResponse struct {
	Open   bool       `json:"open"`
	EndsAt *time.Time `json:"ends_at,omitempty"`
}

type PromoChannelResponse struct {
	Channel   string     `json:"channel"`
	Link      string     `json:"link,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ParticipantResponse struct {
	ParticipantID int64     `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	TeamName      string    `json:"team_name"`
	TicketNumber  int64     `json:"ticket_number"`
	CommittedAt   time.Time `json:"committed_at"`
}

type StatusResponse struct {
	Open         bool                   `json:"open"`
	EndsAt       *time.Time             `json:"ends_at,omitempty"`
	NextTicket   int64                  `json:"next_ticket"`
	Participants int                    `json:"participants"`
	Channels     []PromoChannelResponse `json:"promo_channels"`
}

// EntryAcceptedMessage is published for every committed entry.
type EntryAcceptedMessage struct {
	EventID       string    `json:"event_id"`
	ParticipantID int64     `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	TeamName      string    `json:"team_name"`
	PhotoRef      string    `json:"photo_ref"`
	TicketNumber  int64     `json:"ticket_number"`
	CommittedAt   time.Time `json:"committed_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func UnauthorizedError(c *ginext.Context) {
	c.AbortWithStatusJSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: "Missing or invalid credentials",
		},
	})
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func ChannelNotFoundError(c *ginext.Context) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: ChannelNotFound,
			Desc: "Promo channel not found",
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
