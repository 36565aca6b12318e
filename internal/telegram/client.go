// Package telegram adapts the Bot API client to what the contest bot needs:
// sending messages and photos, checking channel membership and receiving
// updates.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"contestbot/internal/gate"
	"contestbot/internal/model"
)

const DefaultAPIURL = "https://api.telegram.org"

var ErrNoToken = errors.New("telegram: bot token is required")

var allowedUpdates = []string{"message", "callback_query"}

type Config struct {
	Token string
	// APIURL defaults to DefaultAPIURL.
	APIURL string
	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

type Client struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

// NewClient authorizes the token with getMe before returning.
func NewClient(cfg Config, log *zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	api := strings.TrimRight(cfg.APIURL, "/")
	if api == "" {
		api = DefaultAPIURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, api+"/bot%s/%s", hc)
	if err != nil {
		return nil, wrapError("getMe", err)
	}
	log.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")
	return &Client{bot: bot, log: log}, nil
}

// Deliver sends msg as a photo when it carries a photo reference, as a
// text message otherwise.
func (c *Client) Deliver(ctx context.Context, msg model.OutboundMessage) error {
	if msg.PhotoRef != "" {
		photo := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileID(msg.PhotoRef))
		photo.Caption = msg.Text
		photo.ReplyMarkup = replyMarkup(msg.Keyboard)
		_, err := c.request(ctx, "sendPhoto", photo)
		return err
	}
	text := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	text.ReplyMarkup = replyMarkup(msg.Keyboard)
	_, err := c.request(ctx, "sendMessage", text)
	return err
}

// QueryMembership reports whether participantID has joined channel, given
// as "@name" or a numeric chat id.
func (c *Client) QueryMembership(ctx context.Context, channel string, participantID int64) (gate.Membership, error) {
	target := tgbotapi.ChatConfigWithUser{UserID: participantID}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		target.ChatID = id
	} else {
		target.SuperGroupUsername = channel
	}
	resp, err := c.request(ctx, "getChatMember", tgbotapi.GetChatMemberConfig{ChatConfigWithUser: target})
	if err != nil {
		return gate.Unknown, err
	}
	var member tgbotapi.ChatMember
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return gate.Unknown, fmt.Errorf("telegram: failed to parse getChatMember result: %w", err)
	}
	return membershipOf(member), nil
}

func membershipOf(m tgbotapi.ChatMember) gate.Membership {
	switch m.Status {
	case "creator", "administrator", "member":
		return gate.Member
	case "restricted":
		if m.IsMember {
			return gate.Member
		}
		return gate.NotMember
	case "left", "kicked":
		return gate.NotMember
	default:
		return gate.Unknown
	}
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]Update, error) {
	resp, err := c.request(ctx, "getUpdates", tgbotapi.UpdateConfig{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("telegram: failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// AnswerCallback stops the client-side spinner on an inline button.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	_, err := c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, ""))
	return err
}

type response struct {
	resp *tgbotapi.APIResponse
	err  error
}

// request runs one Bot API call. The library call itself takes no context,
// so a cancelled ctx returns early and the call finishes in the background
// bounded by the HTTP client timeout.
func (c *Client) request(ctx context.Context, method string, req tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("telegram: %s: %w", method, err)
	}
	done := make(chan response, 1)
	go func() {
		resp, err := c.bot.Request(req)
		done <- response{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("telegram: %s: %w", method, ctx.Err())
	case r := <-done:
		if r.err != nil {
			err := wrapError(method, r.err)
			c.log.Debug().Err(err).Str("method", method).Msg("bot api call failed")
			return nil, err
		}
		return r.resp, nil
	}
}

// wrapError maps library errors onto *APIError and strips the request URL,
// which embeds the token, from transport errors.
func wrapError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{Code: tgErr.Code, Description: tgErr.Message, RetryAfter: tgErr.RetryAfter, Method: method}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return fmt.Errorf("telegram: %s request failed: %w", method, err)
}

func replyMarkup(kb *model.Keyboard) any {
	if kb == nil {
		return nil
	}
	if len(kb.Inline) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Inline))
		for _, row := range kb.Inline {
			out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				if b.URL != "" {
					out = append(out, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
					continue
				}
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, out)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if len(kb.Reply) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Reply))
		for _, row := range kb.Reply {
			out := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				out = append(out, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, out)
		}
		return tgbotapi.NewReplyKeyboard(rows...)
	}
	return nil
}
