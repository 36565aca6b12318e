package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"contestbot/internal/telegram"
)

// Consumer is the queue side of the RabbitMQ client.
type Consumer interface {
	Consume(handler func([]byte) error) error
}

// Reader feeds Bot API updates published to the inbound queue (by a
// webhook gateway, for example) into the dispatcher.
type Reader struct {
	RMQ    Consumer
	api    *telegram.Client
	sink   telegram.Sink
	done   chan struct{}
	cancel context.CancelFunc
}

// NewReader wires the queue to sink. api may be nil, in which case callback
// queries are not answered.
func NewReader(rmq Consumer, api *telegram.Client, sink telegram.Sink) *Reader {
	return &Reader{
		RMQ:  rmq,
		api:  api,
		sink: sink,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("🐇 RabbitMQ update reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(r.handler(cctx)); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("🛑 RabbitMQ update reader stopped by context")
	}()
}

// handler acks malformed bodies instead of requeueing them forever.
func (r *Reader) handler(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		var u telegram.Update
		if err := json.Unmarshal(body, &u); err != nil {
			zlog.Logger.Error().
				Err(err).
				Int("size", len(body)).
				Msg("dropping malformed update from queue")
			return nil
		}

		zlog.Logger.Debug().
			Int("update_id", u.UpdateID).
			Msg("📩 Received update from RabbitMQ")

		telegram.HandleUpdate(ctx, r.api, r.sink, u, &zlog.Logger)
		return nil
	}
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
