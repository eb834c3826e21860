package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Publisher delivers a payload to the broker under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// Repository is the persistence the relay works against. Store implements it.
type Repository interface {
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}

type RelayConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	RetentionDays int
	// BreakerThreshold is the number of consecutive publish failures that
	// opens the circuit. Zero means 5.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		BackoffBase:      time.Second,
		BackoffMax:       time.Minute,
		RetentionDays:    7,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Relay polls committed outbox messages and publishes them. Delivery is at
// least once: a crash between publish and MarkPublished republishes.
type Relay struct {
	repo      Repository
	publisher Publisher
	config    RelayConfig
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker[any]
	now       func() time.Time

	wg      sync.WaitGroup
	stop    chan struct{}
	running bool
	mu      sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

type Stats struct {
	Running         bool
	Published       uint64
	Failed          uint64
	Dead            uint64
	LastError       string
	LastProcessedAt *time.Time
}

func NewRelay(repo Repository, publisher Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	r := &Relay{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	r.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

// Start runs the poll loop until ctx is done or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx)
	r.logger.Info("outbox relay started", "poll_interval", r.config.PollInterval, "batch_size", r.config.BatchSize)
}

func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Info("outbox relay stopped")
}

func (r *Relay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-cleanup.C:
			r.cleanup(ctx)
		case <-ticker.C:
			if err := r.ProcessOnce(ctx); err != nil {
				r.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

func (r *Relay) cleanup(ctx context.Context) {
	if r.config.RetentionDays <= 0 {
		return
	}
	n, err := r.repo.DeleteOld(ctx, r.config.RetentionDays)
	if err != nil {
		r.logger.Warn("outbox cleanup failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("outbox cleanup", "deleted", n)
	}
}

// ProcessOnce publishes one batch synchronously.
func (r *Relay) ProcessOnce(ctx context.Context) error {
	msgs, err := r.repo.GetUnpublished(ctx, r.config.BatchSize)
	if err != nil {
		r.recordError(err)
		return err
	}
	r.statsMu.Lock()
	now := r.now()
	r.stats.LastProcessedAt = &now
	r.statsMu.Unlock()

	for _, msg := range msgs {
		_, err := r.breaker.Execute(func() (any, error) {
			return nil, r.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// broker considered down; leave the rest for a later poll
			r.logger.Warn("outbox publish skipped, circuit open", "pending", len(msgs))
			return nil
		}
		if err != nil {
			r.handleFailure(ctx, msg, err)
			continue
		}
		if err := r.repo.MarkPublished(ctx, msg.ID); err != nil {
			r.logger.Error("failed to mark message published", "id", msg.ID, "event_id", msg.EventID, "error", err)
			continue
		}
		r.statsMu.Lock()
		r.stats.Published++
		r.statsMu.Unlock()
	}
	return nil
}

func (r *Relay) handleFailure(ctx context.Context, msg *Message, err error) {
	r.logger.Warn("failed to publish message", "id", msg.ID, "routing_key", msg.RoutingKey, "event_id", msg.EventID, "error", err)
	r.recordError(err)
	if !msg.CanRetry(r.config.MaxRetries) {
		r.statsMu.Lock()
		r.stats.Dead++
		r.statsMu.Unlock()
		if markErr := r.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			r.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		return
	}
	r.statsMu.Lock()
	r.stats.Failed++
	r.statsMu.Unlock()
	next := r.now().Add(r.backoff(msg.RetryCount + 1))
	if markErr := r.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		r.logger.Error("failed to mark message failed", "id", msg.ID, "error", markErr)
	}
}

// backoff is base*2^(attempt-1), capped at BackoffMax.
func (r *Relay) backoff(attempt int) time.Duration {
	base := r.config.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	limit := r.config.BackoffMax
	if limit <= 0 {
		limit = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func (r *Relay) recordError(err error) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.LastError = err.Error()
}

func (r *Relay) Stats() Stats {
	r.statsMu.Lock()
	s := r.stats
	r.statsMu.Unlock()
	s.Running = r.IsRunning()
	return s
}
