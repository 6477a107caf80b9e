package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/event"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandSubjectPrefix = "vault.commands"
	EventSubjectPrefix   = "vault.events"

	gapRetryDelay = time.Second
)

// Submitter hands a command to the processor and waits for its outcome.
// *core.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, evt event.Event) (core.Result, error)
}

// NATSSubscriber consumes command subjects from JetStream and submits each
// message to the processor, acknowledging only once the outcome is known.
type NATSSubscriber struct {
	js        jetstream.JetStream
	submitter Submitter
	logger    zerolog.Logger
	consumers []jetstream.ConsumeContext
}

// SubjectConfig binds one command type to a durable consumer.
type SubjectConfig struct {
	Subject      string
	EventType    event.EventType
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns one consumer per command type:
// vault.commands.<type>.> on the given stream.
func DefaultSubjects(stream, consumerPrefix string) []SubjectConfig {
	types := event.EventTypes()
	out := make([]SubjectConfig, 0, len(types))
	for _, et := range types {
		token := SubjectToken(et)
		out = append(out, SubjectConfig{
			Subject:      fmt.Sprintf("%s.%s.>", CommandSubjectPrefix, token),
			EventType:    et,
			ConsumerName: consumerPrefix + "-" + token,
			StreamName:   stream,
		})
	}
	return out
}

func NewNATSSubscriber(js jetstream.JetStream, submitter Submitter, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{js: js, submitter: submitter, logger: logger}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		et := cfg.EventType
		consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
			ns.handle(ctx, et, msg)
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumeCtx)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

func (ns *NATSSubscriber) handle(ctx context.Context, et event.EventType, msg jetstream.Msg) {
	evt, err := Decode(et, msg.Data())
	if err != nil {
		ns.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed command")
		_ = msg.Term()
		return
	}

	res, err := ns.submitter.Submit(ctx, evt)
	switch d := Disposition(res, err); d {
	case Ack:
		_ = msg.Ack()
	case Retry:
		_ = msg.NakWithDelay(gapRetryDelay)
	case Drop:
		ns.logger.Warn().Err(err).Str("key", evt.IdempotencyKey()).Msg("dropping stale command")
		_ = msg.Term()
	default:
		ns.logger.Warn().Err(err).Str("key", evt.IdempotencyKey()).Msg("command not processed, redelivering")
		_ = msg.Nak()
	}
}

// AckAction is what to do with a message once the processor answered.
type AckAction int

const (
	Ack   AckAction = iota // applied, rejected or duplicate: the outcome is logged
	Retry                  // an earlier command of the partition is still missing
	Drop                   // older than the partition's position, never applicable
	Nak                    // not processed, redeliver now
)

// Disposition maps a submission outcome to an AckAction.
func Disposition(res core.Result, err error) AckAction {
	switch {
	case err == nil, res.Rejection != "":
		return Ack
	case errors.Is(err, core.ErrSequenceGap):
		return Retry
	case errors.Is(err, core.ErrOutOfOrder):
		return Drop
	default:
		return Nak
	}
}

// Stop stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// EnsureStreams creates the command and outbound event streams.
// Both use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, commandStream, eventStream string) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      commandStream,
			Subjects:  []string{CommandSubjectPrefix + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       eventStream,
			Subjects:   []string{EventSubjectPrefix + ".>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Replicas:   1,
			Duplicates: 10 * time.Minute,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("yieldvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
