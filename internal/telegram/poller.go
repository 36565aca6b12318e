package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/intake"
)

// Sink accepts inbound events, e.g. *intake.Dispatcher.
type Sink interface {
	Dispatch(ev intake.Event) bool
}

type Poller struct {
	client  *Client
	sink    Sink
	timeout time.Duration
	log     *zerolog.Logger
}

func NewPoller(client *Client, sink Sink, timeout time.Duration, log *zerolog.Logger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{client: client, sink: sink, timeout: timeout, log: log}
}

// Run long-polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int
	backoff := time.Second
	for {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			p.log.Warn().Err(err).Dur("retry_in", wait).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			backoff = min(backoff*2, time.Minute)
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			offset = u.UpdateID + 1
			HandleUpdate(ctx, p.client, p.sink, u, p.log)
		}
	}
}

// HandleUpdate converts u and hands it to sink, answering callback queries
// on the way. Shared by polling, webhook and queue intake.
func HandleUpdate(ctx context.Context, client *Client, sink Sink, u Update, log *zerolog.Logger) {
	ev, callbackID, ok := EventFromUpdate(u)
	if !ok {
		return
	}
	if callbackID != "" && client != nil {
		if err := client.AnswerCallback(ctx, callbackID); err != nil {
			log.Debug().Err(err).Msg("answerCallbackQuery failed")
		}
	}
	if !sink.Dispatch(ev) {
		log.Warn().Int("update_id", u.UpdateID).Msg("dispatcher closed, update dropped")
	}
}
