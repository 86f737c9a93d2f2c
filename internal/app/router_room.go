package app

import (
	"context"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (r *Router) startSpan(ctx context.Context, name string, f protocol.Frame) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("relay.room", f.Room),
		attribute.String("relay.sender", f.Sender),
		attribute.Int("relay.reply", int(f.Reply)),
	))
}

func (r *Router) handleJoin(ctx context.Context, f protocol.Frame) {
	ctx, span := r.startSpan(ctx, "router.join", f)
	defer span.End()

	log.Info().Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("join")

	idx, ok := r.reg.FindRoom(f.Room)
	if !ok {
		var err error
		idx, err = r.reg.CreateRoom(f.Room)
		if err != nil {
			span.RecordError(err)
			log.Warn().Err(err).Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("join rejected")
			r.reply(ctx, f.Reply, joinFailedText(err))
			return
		}
	}

	m := domain.Member{Name: f.Sender, Reply: f.Reply}
	if err := r.reg.AddMember(idx, m); err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("join rejected")
		r.reply(ctx, f.Reply, joinFailedText(err))
		return
	}
	r.reply(ctx, f.Reply, joinedText(f.Room))
}

func (r *Router) handleChat(ctx context.Context, f protocol.Frame) {
	ctx, span := r.startSpan(ctx, "router.chat", f)
	defer span.End()

	log.Info().Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("chat")
	log.Debug().Str("module", "app.router").Str("sender", f.Sender).Str("text", f.Text).Msg("chat text")

	idx, ok := r.reg.FindRoom(f.Room)
	if !ok {
		r.metrics.FramesDropped.WithLabelValues(ReasonUnknownRoom).Inc()
		log.Debug().Str("module", "app.router").Str("room", f.Room).Str("reason", ReasonUnknownRoom).Msg("chat dropped")
		return
	}

	out := protocol.Frame{Kind: protocol.Chat, Sender: f.Sender, Text: f.Text, Room: f.Room}
	data, err := out.MarshalBinary()
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode chat")
		return
	}

	from := domain.Member{Name: f.Sender, Reply: f.Reply}
	res := r.reg.Broadcast(idx, from, func(m domain.Member) error {
		return r.sys.Send(ctx, m.Reply, data)
	})
	r.metrics.Deliveries.Add(float64(res.SentTo))
	span.SetAttributes(attribute.Int("relay.sent_to", res.SentTo), attribute.Int("relay.dropped", len(res.Dropped)))

	for _, d := range res.Dropped {
		r.metrics.DeliveryFailures.WithLabelValues(failureReason(d.Err)).Inc()
		action := r.policy.OnDeliveryFailure(f.Room, d.Member, d.Err)
		log.Warn().Err(d.Err).Str("module", "app.router").Str("room", f.Room).Str("user", d.Member.Name).
			Stringer("reply", d.Member.Reply).Stringer("action", action).Msg("delivery failed")
		switch action {
		case EvictMember:
			r.reg.Evict(idx, d.Member)
		case NoAction:
		}
	}
}

func (r *Router) handleLeave(ctx context.Context, f protocol.Frame) {
	ctx, span := r.startSpan(ctx, "router.leave", f)
	defer span.End()

	log.Info().Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("leave")

	idx, ok := r.reg.FindRoom(f.Room)
	if !ok {
		r.metrics.FramesDropped.WithLabelValues(ReasonUnknownRoom).Inc()
		log.Debug().Str("module", "app.router").Str("room", f.Room).Str("reason", ReasonUnknownRoom).Msg("leave dropped")
		return
	}
	if _, err := r.reg.RemoveMember(idx, f.Sender); err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("sender", f.Sender).Str("room", f.Room).Msg("leave for non-member")
	}
	r.reply(ctx, f.Reply, LeftText)
}
