package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dkeye/Relay/internal/app"

// DefaultRetryBackoff is the pause after a failed receive on the global channel.
const DefaultRetryBackoff = 100 * time.Millisecond

// ErrStopped is returned by queries once Run has returned.
var ErrStopped = errors.New("router stopped")

// Router is the relay's main loop. It receives frames from the global
// channel and is the only goroutine that touches the registry.
type Router struct {
	sys     mailbox.System
	global  mailbox.Handle
	reg     *core.Registry
	policy  Policy
	metrics *Metrics
	tracer  trace.Tracer
	backoff time.Duration

	queries chan func(*core.Registry)
	done    chan struct{}
}

type Option func(*Router)

func WithPolicy(p Policy) Option { return func(r *Router) { r.policy = p } }

func WithMetrics(m *Metrics) Option { return func(r *Router) { r.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(r *Router) { r.tracer = t } }

func WithRetryBackoff(d time.Duration) Option { return func(r *Router) { r.backoff = d } }

func NewRouter(sys mailbox.System, global mailbox.Handle, reg *core.Registry, opts ...Option) *Router {
	r := &Router{
		sys:     sys,
		global:  global,
		reg:     reg,
		policy:  KeepPolicy{},
		backoff: DefaultRetryBackoff,
		queries: make(chan func(*core.Registry)),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Run processes frames until ctx is done or the global channel goes away.
// It returns nil on cancellation.
func (r *Router) Run(ctx context.Context) error {
	defer close(r.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan []byte)
	errc := make(chan error, 1)
	go r.pump(ctx, frames, errc)

	log.Info().Str("module", "app.router").Stringer("global", r.global).Msg("router started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.router").Msg("router stopped")
			return nil
		case err := <-errc:
			log.Error().Err(err).Str("module", "app.router").Msg("router stopped")
			return err
		case q := <-r.queries:
			q(r.reg)
		case data := <-frames:
			r.handle(ctx, data)
		}
	}
}

// pump is the only caller of Receive on the global channel.
func (r *Router) pump(ctx context.Context, frames chan<- []byte, errc chan<- error) {
	for {
		data, err := r.sys.Receive(ctx, r.global)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if mailbox.Permanent(err) {
				errc <- fmt.Errorf("receive on global channel: %w", err)
				return
			}
			r.metrics.FramesDropped.WithLabelValues(ReasonReceive).Inc()
			log.Warn().Err(err).Str("module", "app.router").Msg("receive failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff):
			}
			continue
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) handle(ctx context.Context, data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		r.metrics.FramesDropped.WithLabelValues(ReasonMalformed).Inc()
		log.Warn().Err(err).Str("module", "app.router").Int("size", len(data)).Msg("malformed frame dropped")
		return
	}
	r.Dispatch(ctx, f)
}

// Dispatch applies one frame to the registry. It must only be called from
// the goroutine that owns the registry.
func (r *Router) Dispatch(ctx context.Context, f protocol.Frame) {
	r.metrics.FramesReceived.WithLabelValues(f.Kind.String()).Inc()
	if err := f.ValidateRequest(); err != nil {
		r.metrics.FramesDropped.WithLabelValues(ReasonInvalid).Inc()
		log.Warn().Err(err).Str("module", "app.router").Stringer("kind", f.Kind).Str("sender", f.Sender).Msg("invalid request dropped")
		return
	}

	switch f.Kind {
	case protocol.Join:
		r.handleJoin(ctx, f)
	case protocol.Chat:
		r.handleChat(ctx, f)
	case protocol.Leave:
		r.handleLeave(ctx, f)
	}
	r.metrics.Rooms.Set(float64(r.reg.Len()))
	r.metrics.Members.Set(float64(r.reg.MemberCount()))
}

// Rooms returns a snapshot of the registry taken on the router's goroutine.
func (r *Router) Rooms(ctx context.Context) ([]domain.RoomInfo, error) {
	res := make(chan []domain.RoomInfo, 1)
	q := func(reg *core.Registry) { res <- reg.Snapshot() }
	select {
	case r.queries <- q:
	case <-r.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case v := <-res:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Router) reply(ctx context.Context, to mailbox.Handle, text string) {
	data, err := protocol.NewResponse(text).MarshalBinary()
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode response")
		return
	}
	if err := r.sys.Send(ctx, to, data); err != nil {
		r.metrics.DeliveryFailures.WithLabelValues(failureReason(err)).Inc()
		log.Warn().Err(err).Str("module", "app.router").Stringer("to", to).Msg("response not delivered")
		return
	}
	r.metrics.Deliveries.Inc()
}
