// Package outbox implements the outbound delivery queue: it stamps locally
// created messages with provisional ids and retransmits them until the server
// acknowledges each one with its durable id.
package outbox

import (
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/putto11262002/chatsync/core"
	"github.com/putto11262002/chatsync/ws"
)

const (
	defaultResendInterval = 5 * time.Second
	defaultMaxInterval    = 60 * time.Second
	defaultMaxRetries     = 10
)

// Transport is the sending half of the connection manager. Sends may be
// silently dropped while the transport is down; retransmission compensates.
type Transport interface {
	Send(v any) error
}

type pending struct {
	frame   ws.SendMessageFrame
	retries int
	nextAt  time.Time
	bo      *backoff.ExponentialBackOff
}

// Outbox assigns provisional ids (-1, -2, ...) to submitted messages and
// resends each pending frame verbatim on a backoff schedule until the
// matching acknowledgment arrives or the retry cap is hit. Ids are never
// reused within a session, reconnects included. Like the store, it is owned
// by the engine loop and carries no lock.
type Outbox struct {
	next           int64
	pendings       map[int64]*pending
	transport      Transport
	resendInterval time.Duration
	maxInterval    time.Duration
	maxRetries     int
	logger         *slog.Logger
	now            func() time.Time
}

type Option func(*Outbox)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Outbox) { o.logger = logger }
}

func WithResendInterval(d time.Duration) Option {
	return func(o *Outbox) { o.resendInterval = d }
}

func WithMaxInterval(d time.Duration) Option {
	return func(o *Outbox) { o.maxInterval = d }
}

func WithMaxRetries(n int) Option {
	return func(o *Outbox) { o.maxRetries = n }
}

// withClock overrides time for tests.
func withClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

func New(transport Transport, opts ...Option) *Outbox {
	o := &Outbox{
		next:           -1,
		pendings:       make(map[int64]*pending),
		transport:      transport,
		resendInterval: defaultResendInterval,
		maxInterval:    defaultMaxInterval,
		maxRetries:     defaultMaxRetries,
		logger:         slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit allocates the next provisional id, transmits the send frame, and
// records it for retransmission. The returned frame carries the id the
// caller uses to materialize the optimistic message.
func (o *Outbox) Submit(roomID int64, content string, replyID int64) ws.SendMessageFrame {
	id := o.next
	o.next--

	frame := ws.NewSendMessage(roomID, content, id, replyID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.resendInterval
	bo.MaxInterval = o.maxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	o.pendings[id] = &pending{
		frame:  frame,
		nextAt: o.now().Add(bo.NextBackOff()),
		bo:     bo,
	}

	o.transport.Send(frame)
	o.logger.Debug("submitted message",
		slog.Int64("ack_id", id), slog.Int64("room_id", roomID))
	return frame
}

// Ack resolves the pending send with the given provisional id. Unknown ids
// are ignored: the send was already resolved or the ack is stale, so a
// duplicate acknowledgment is a no-op.
func (o *Outbox) Ack(ackID int64) (ws.SendMessageFrame, bool) {
	p, ok := o.pendings[ackID]
	if !ok {
		return ws.SendMessageFrame{}, false
	}
	delete(o.pendings, ackID)
	return p.frame, true
}

// Tick resends every pending frame whose backoff deadline has passed. Frames
// that exhaust the retry cap move to a terminal failed state and their
// provisional ids are returned so the caller can surface the failure.
func (o *Outbox) Tick() []ws.SendMessageFrame {
	now := o.now()
	var failed []ws.SendMessageFrame
	for id, p := range o.pendings {
		if now.Before(p.nextAt) {
			continue
		}
		if p.retries >= o.maxRetries {
			delete(o.pendings, id)
			failed = append(failed, p.frame)
			o.logger.Warn("send failed: retry cap reached",
				slog.Int64("ack_id", id), slog.Int("retries", p.retries))
			continue
		}
		p.retries++
		p.nextAt = now.Add(p.bo.NextBackOff())
		o.transport.Send(p.frame)
		o.logger.Debug("resent pending message",
			slog.Int64("ack_id", id), slog.Int("retry", p.retries))
	}
	return failed
}

// Pending returns the pending-send set in unspecified order.
func (o *Outbox) Pending() []core.PendingSend {
	out := make([]core.PendingSend, 0, len(o.pendings))
	for id, p := range o.pendings {
		out = append(out, core.PendingSend{
			AckID:   id,
			RoomID:  p.frame.RoomID,
			Content: p.frame.Message,
			ReplyID: p.frame.ReplyID,
			Retries: p.retries,
		})
	}
	return out
}

func (o *Outbox) Len() int {
	return len(o.pendings)
}
