// v1
// internal/persist/gateway.go

// Package persist stores learning-state snapshots in an embedded bbolt
// database. Saves are asynchronous and best effort: the recommendation
// path enqueues a snapshot and moves on, a background loop writes it with
// bounded exponential backoff, and a snapshot that exhausts its retries is
// dropped with a warning. That drop is the documented data-loss boundary.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"nrgchamp/recommender/internal/learning"
	"nrgchamp/recommender/internal/metrics"
)

var (
	bucketEntities = []byte("entities")
	bucketMeta     = []byte("meta")
	keyParams      = []byte("params")
)

var (
	errGatewayNotStarted = errors.New("persistence gateway not started")
	errGatewayDisabled   = errors.New("persistence gateway disabled")
)

// Config tunes the gateway. A zero Path disables persistence entirely;
// the engine then runs in memory only.
type Config struct {
	Path        string
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	OpenTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 2 * time.Second
	}
}

// Gateway serializes snapshots to disk. It never mutates learning state.
type Gateway struct {
	cfg     Config
	log     *slog.Logger
	db      *bolt.DB
	enabled bool

	queue     chan learning.Snapshot
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// New opens the snapshot database. An empty path returns a disabled
// gateway whose Load yields empty state and whose Save is a logged no-op.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("component", "persistence_gateway"))
	cfg.applyDefaults()

	if cfg.Path == "" {
		logger.Info("persistence_disabled")
		return &Gateway{cfg: cfg, log: logger}, nil
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db %s: %w", cfg.Path, err)
	}
	g := &Gateway{
		cfg:     cfg,
		log:     logger,
		db:      db,
		enabled: true,
		queue:   make(chan learning.Snapshot, cfg.QueueSize),
	}
	metrics.SetSaveQueueDepth(0)
	return g, nil
}

// Load reads the persisted snapshot. Every failure mode degrades to empty
// state: missing file, missing buckets, or corrupt documents (skipped one
// by one with a warning) never prevent the engine from starting.
func (g *Gateway) Load(ctx context.Context) learning.Snapshot {
	snap := learning.Snapshot{Entities: make(map[string]learning.EntitySnapshot)}
	if !g.enabled {
		return snap
	}

	err := g.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if raw := meta.Get(keyParams); raw != nil {
				var doc paramsDoc
				if err := json.Unmarshal(raw, &doc); err != nil {
					g.log.Warn("params_doc_corrupt", slog.Any("err", err))
				} else {
					snap.Epsilon = doc.Epsilon
					snap.TakenAt = doc.SavedAt
				}
			}
		}
		entities := tx.Bucket(bucketEntities)
		if entities == nil {
			return nil
		}
		return entities.ForEach(func(k, v []byte) error {
			es, err := decodeEntity(string(k), v)
			if err != nil {
				g.log.Warn("entity_doc_skipped", slog.String("entity", string(k)), slog.Any("err", err))
				return nil
			}
			snap.Entities[string(k)] = es
			return nil
		})
	})
	if err != nil {
		g.log.Warn("snapshot_load_failed", slog.Any("err", err))
		return learning.Snapshot{Entities: make(map[string]learning.EntitySnapshot)}
	}

	g.log.Info("snapshot_loaded",
		slog.Int("entities", len(snap.Entities)),
		slog.Float64("epsilon", snap.Epsilon),
	)
	return snap
}

// Start launches the background save loop.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.enabled {
		return nil
	}
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	g.startOnce.Do(func() {
		g.runCtx, g.cancel = context.WithCancel(ctx)
		g.started.Store(true)
		g.wg.Add(1)
		go g.run()
		g.log.Info("save_loop_started", slog.String("path", g.cfg.Path))
	})
	if !g.started.Load() {
		return errGatewayNotStarted
	}
	return nil
}

// Stop drains pending saves and closes the database.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.enabled {
		return nil
	}
	var stopErr error
	g.stopOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
		}
		done := make(chan struct{})
		go func() {
			g.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if err := g.db.Close(); err != nil {
			g.log.Error("snapshot_db_close_err", slog.Any("err", err))
		}
		g.log.Info("save_loop_stopped")
	})
	return stopErr
}

// Save enqueues a snapshot without blocking the caller. When the queue is
// full the oldest pending snapshot is displaced, since the newest one
// subsumes it.
func (g *Gateway) Save(snap learning.Snapshot) error {
	if !g.enabled {
		return errGatewayDisabled
	}
	if !g.started.Load() {
		return errGatewayNotStarted
	}
	for {
		select {
		case g.queue <- snap:
			metrics.SetSaveQueueDepth(len(g.queue))
			return nil
		default:
		}
		select {
		case stale := <-g.queue:
			g.log.Warn("save_queue_displaced", slog.Time("taken_at", stale.TakenAt))
			metrics.IncPersistenceSave("dropped")
		default:
		}
	}
}

func (g *Gateway) run() {
	defer g.wg.Done()
	for {
		select {
		case <-g.runCtx.Done():
			g.drain()
			g.started.Store(false)
			return
		case snap := <-g.queue:
			metrics.SetSaveQueueDepth(len(g.queue))
			g.deliver(snap, true)
		}
	}
}

// drain makes a final best-effort pass over whatever is still queued,
// without backoff sleeps, so shutdown stays bounded.
func (g *Gateway) drain() {
	for {
		select {
		case snap := <-g.queue:
			metrics.SetSaveQueueDepth(len(g.queue))
			g.deliver(snap, false)
		default:
			return
		}
	}
}

// deliver writes one snapshot, retrying with exponential backoff up to the
// configured bound. Exhausted snapshots are dropped with a warning.
func (g *Gateway) deliver(snap learning.Snapshot, allowRetry bool) {
	backoff := g.cfg.BaseBackoff
	attempts := g.cfg.MaxRetries
	if !allowRetry {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := g.writeSnapshot(snap)
		if err == nil {
			metrics.IncPersistenceSave("ok")
			g.log.Info("snapshot_saved",
				slog.Int("entities", len(snap.Entities)),
				slog.Int("attempt", attempt),
			)
			return
		}
		g.log.Warn("snapshot_save_retry",
			slog.Int("attempt", attempt),
			slog.Int("max", attempts),
			slog.Any("err", err),
		)
		metrics.IncPersistenceSave("retry")
		if attempt == attempts {
			break
		}
		select {
		case <-g.runCtx.Done():
			// One last immediate try happens via drain; give up here.
			attempt = attempts
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
		}
	}
	metrics.IncPersistenceSave("dropped")
	g.log.Warn("snapshot_dropped", slog.Time("taken_at", snap.TakenAt))
}

// writeSnapshot replaces the stored state in one transaction so readers
// never observe a half-written generation.
func (g *Gateway) writeSnapshot(snap learning.Snapshot) error {
	return g.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketEntities) != nil {
			if err := tx.DeleteBucket(bucketEntities); err != nil {
				return err
			}
		}
		entities, err := tx.CreateBucket(bucketEntities)
		if err != nil {
			return err
		}
		for id, es := range snap.Entities {
			raw, err := encodeEntity(es)
			if err != nil {
				return fmt.Errorf("encode entity %s: %w", id, err)
			}
			if err := entities.Put([]byte(id), raw); err != nil {
				return err
			}
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(paramsDoc{
			SchemaVersion: SchemaVersion,
			Epsilon:       snap.Epsilon,
			SavedAt:       snap.TakenAt,
		})
		if err != nil {
			return err
		}
		return meta.Put(keyParams, raw)
	})
}
