// v1
// internal/ingest/consumer.go

// Package ingest consumes thermostat interaction events from Kafka and
// forwards them to the recommendation engine. Malformed events are
// logged and skipped; the stream is never blocked by one bad payload.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/recommender/internal/engine"
	"nrgchamp/recommender/internal/metrics"
)

// Event types accepted on the interaction topic.
const (
	TypeRecommendationApplied = "recommendation-applied"
	TypeManualAdjustment      = "temperature-manually-changed"
	TypeEntitySelected        = "entity-selected"
)

// Handler receives decoded interaction events. The engine implements it.
type Handler interface {
	HandleRecommendationApplied(ctx context.Context, ev engine.RecommendationAppliedEvent)
	HandleManualAdjustment(ctx context.Context, ev engine.ManualAdjustmentEvent)
	HandleEntitySelected(ctx context.Context, ev engine.EntitySelectedEvent)
}

// Config captures the runtime tunables required to consume the
// interaction stream.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// kafkaMessageFetcher captures the read/commit capability of the Kafka
// reader so tests can substitute a fake.
type kafkaMessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer streams interaction events from Kafka into the handler.
type Consumer struct {
	cfg     Config
	fetcher kafkaMessageFetcher
	handler Handler
	log     *slog.Logger
	poll    time.Duration
}

// NewConsumer builds a Kafka reader for the interaction topic.
func NewConsumer(cfg Config, handler Handler, log *slog.Logger) (*Consumer, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	if handler == nil {
		return nil, errors.New("handler must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("interaction topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumerWithFetcher(cfg, handler, log, reader), nil
}

// newConsumerWithFetcher wires the provided fetcher. Used in tests.
func newConsumerWithFetcher(cfg Config, handler Handler, log *slog.Logger, fetcher kafkaMessageFetcher) *Consumer {
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Consumer{
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		log:     log.With(slog.String("component", "ingest")),
		poll:    poll,
	}
}

// Close shuts down the underlying Kafka reader.
func (c *Consumer) Close() error {
	if c == nil || c.fetcher == nil {
		return nil
	}
	return c.fetcher.Close()
}

// Run blocks until the context is cancelled or the reader is closed,
// dispatching events to the handler and committing each message after
// dispatch.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("nil consumer")
	}
	if ctx == nil {
		return errors.New("context must not be nil")
	}

	c.log.Info("ingest_started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
		slog.String("brokers", strings.Join(c.cfg.Brokers, ",")),
	)
	defer c.log.Info("ingest_stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("ingest_fetch_error", slog.Any("err", err))
			continue
		}

		c.dispatch(ctx, msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.fetcher.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error("ingest_commit_error", slog.Any("err", err))
			}
		}
		commitCancel()
	}
}

// eventEnvelope mirrors the interaction wire format while tolerating
// additional fields.
type eventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	var env eventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		metrics.IncEventConsumed("unknown", "malformed")
		c.log.Warn("ingest_decode_error", slog.Any("err", err), slog.Int64("offset", msg.Offset))
		return
	}

	switch env.Type {
	case TypeRecommendationApplied:
		var ev engine.RecommendationAppliedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			metrics.IncEventConsumed(env.Type, "malformed")
			c.log.Warn("ingest_decode_error", slog.String("type", env.Type), slog.Any("err", err))
			return
		}
		c.handler.HandleRecommendationApplied(ctx, ev)
		metrics.IncEventConsumed(env.Type, "ok")
	case TypeManualAdjustment:
		var ev engine.ManualAdjustmentEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			metrics.IncEventConsumed(env.Type, "malformed")
			c.log.Warn("ingest_decode_error", slog.String("type", env.Type), slog.Any("err", err))
			return
		}
		c.handler.HandleManualAdjustment(ctx, ev)
		metrics.IncEventConsumed(env.Type, "ok")
	case TypeEntitySelected:
		var ev engine.EntitySelectedEvent
		if err := decodePayload(env.Payload, &ev); err != nil {
			metrics.IncEventConsumed(env.Type, "malformed")
			c.log.Warn("ingest_decode_error", slog.String("type", env.Type), slog.Any("err", err))
			return
		}
		c.handler.HandleEntitySelected(ctx, ev)
		metrics.IncEventConsumed(env.Type, "ok")
	default:
		metrics.IncEventConsumed("unknown", "skipped")
		c.log.Warn("ingest_unknown_type", slog.String("type", env.Type), slog.Int64("offset", msg.Offset))
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("payload missing")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
