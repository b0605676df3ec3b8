// v1
// internal/activity/publisher.go

// Package activity publishes engine activity records to the shared
// activity topic. Publishing is strictly fire-and-forget: records are
// queued without blocking the engine, delivered by a background loop
// through a circuit breaker, and dropped with a warning when the queue
// backs up or the broker stays down.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"nrgchamp/recommender/internal/breaker"
	"nrgchamp/recommender/internal/engine"
	"nrgchamp/recommender/internal/metrics"
)

// Record types on the wire.
const (
	TypeRecommendationApplied    = "recommendation-applied"
	TypeManualAdjustment         = "manual-adjustment"
	TypeSuccessfulRecommendation = "successful-recommendation"
)

const queueSize = 256

// Config encapsulates the runtime options for activity publishing.
type Config struct {
	Enabled bool
	Topic   string
	Brokers []string
	Acks    int
	Breaker breaker.Config
}

// envelope is the serialized activity record.
type envelope struct {
	Type     string          `json:"type"`
	EntityID string          `json:"entityId"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

// Publisher implements engine.ActivityLogger over Kafka.
type Publisher struct {
	cfg     Config
	log     *slog.Logger
	writer  kafkaMessageWriter
	closer  kafkaWriteCloser
	brk     *breaker.Breaker
	enabled bool

	queue     chan kafka.Message
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

var _ engine.ActivityLogger = (*Publisher)(nil)

// NewPublisher builds a publisher backed by a Kafka writer guarded by the
// circuit breaker. A disabled config returns a publisher that drops
// everything silently.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("component", "activity_publisher"))
	if !cfg.Enabled {
		logger.Info("activity_publisher_disabled")
		return &Publisher{cfg: cfg, log: logger}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("activity topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: false,
		Balancer:               &kafka.Hash{},
	}
	return newPublisherWithWriter(cfg, logger, w, w)
}

// newPublisherWithWriter wires the provided writer. Used in tests.
func newPublisherWithWriter(cfg Config, logger *slog.Logger, writer kafkaMessageWriter, closer kafkaWriteCloser) (*Publisher, error) {
	if writer == nil {
		return nil, errors.New("writer must not be nil")
	}
	return &Publisher{
		cfg:     cfg,
		log:     logger,
		writer:  writer,
		closer:  closer,
		brk:     breaker.New("activity-writer", cfg.Breaker, logger),
		enabled: true,
		queue:   make(chan kafka.Message, queueSize),
	}, nil
}

// Start launches the delivery loop.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("activity_publisher_started", slog.String("topic", p.cfg.Topic))
	})
	return nil
}

// Stop drains in-flight records and closes the writer.
func (p *Publisher) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	var stopErr error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if p.closer != nil {
			if err := p.closer.Close(); err != nil {
				p.log.Error("activity_writer_close_err", slog.Any("err", err))
			}
		}
		p.log.Info("activity_publisher_stopped")
	})
	return stopErr
}

// LogRecommendationApplication implements engine.ActivityLogger.
func (p *Publisher) LogRecommendationApplication(_ context.Context, rec engine.ApplicationRecord) {
	p.enqueue(TypeRecommendationApplied, rec.EntityID, rec.At, rec)
}

// LogManualAdjustment implements engine.ActivityLogger.
func (p *Publisher) LogManualAdjustment(_ context.Context, rec engine.AdjustmentRecord) {
	p.enqueue(TypeManualAdjustment, rec.EntityID, rec.At, rec)
}

// LogSuccessfulRecommendation implements engine.ActivityLogger.
func (p *Publisher) LogSuccessfulRecommendation(_ context.Context, rec engine.SuccessRecord) {
	p.enqueue(TypeSuccessfulRecommendation, rec.EntityID, rec.At, rec)
}

func (p *Publisher) enqueue(typ, entityID string, at time.Time, payload any) {
	if !p.enabled || !p.started.Load() {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.IncActivityPublished("fail")
		p.log.Error("activity_encode_err", slog.String("type", typ), slog.Any("err", err))
		return
	}
	value, err := json.Marshal(envelope{Type: typ, EntityID: entityID, At: at, Payload: raw})
	if err != nil {
		metrics.IncActivityPublished("fail")
		p.log.Error("activity_encode_err", slog.String("type", typ), slog.Any("err", err))
		return
	}
	msg := kafka.Message{Key: []byte(entityID), Value: value}
	select {
	case p.queue <- msg:
	default:
		metrics.IncActivityPublished("dropped")
		p.log.Warn("activity_queue_full", slog.String("type", typ), slog.String("entity", entityID))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			return
		case msg := <-p.queue:
			p.deliver(msg)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.deliver(msg)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(msg kafka.Message) {
	err := p.brk.Execute(p.runCtx, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		metrics.IncActivityPublished("fail")
		p.log.Warn("activity_publish_err", slog.Any("err", err))
		return
	}
	metrics.IncActivityPublished("ok")
}
