// Package service provides the reading-list service behind the HTTP API
// and the maintenance commands.
//
// Every write runs as one store transaction while holding the acting
// user's lock, so rank shifts of sibling books and the change to the
// target book are persisted together or not at all. Users never share a
// lock and their operations run in parallel.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	eventqueue "github.com/okian/readq/internal/adapters/mq/queue"
	workerpool "github.com/okian/readq/internal/adapters/mq/worker"
	repository "github.com/okian/readq/internal/adapters/repository"
	"github.com/okian/readq/internal/domain/dedupe"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/scoring"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the API dependencies for the reading-list tracker.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	calculator *scoring.Calculator
	locks      *userLocks

	// Background rescoring
	deduper    dedupe.Deduper
	jobs       *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	now         func() time.Time
	newID       func() string

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The caller keeps ownership and
// closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCalculator sets the score calculator.
func WithCalculator(c *scoring.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calculator = c
		}
	}
}

// WithWorkerCount sets the number of rescore workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the rescore queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many pending rescore jobs are tracked.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the book id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a new Service. Without WithStore it keeps everything in
// memory.
func New(opts ...Option) *Service {
	s := &Service{
		locks:       newUserLocks(),
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		dedupeSize:  10000,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.calculator == nil {
		s.calculator = scoring.NewCalculator()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Calculator returns the calculator scores are computed with.
func (s *Service) Calculator() *scoring.Calculator { return s.calculator }

// Start launches the rescore queue and workers. Book operations do not
// need a started service.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting reading list service...")

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.jobs = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobs, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "reading list service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending rescore jobs and stops the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping reading list service...")
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "rescore workers did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "reading list service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"activeUsers": s.locks.len(),
	}

	if s.started {
		queueLen := s.jobs.Len()
		stats["queueLength"] = queueLen
		stats["pendingRescores"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

// EnqueueRescoreAll queues one rescore job per known user. Users that
// already have a job pending are counted as duplicates.
func (s *Service) EnqueueRescoreAll(ctx context.Context, reason string) (types.RescoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res types.RescoreResult
	if !s.started {
		return res, ErrNotStarted
	}

	users, err := s.Users(ctx)
	if err != nil {
		return res, err
	}
	res.Users = len(users)

	for _, user := range users {
		key := rescoreKey(user)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordQueueDuplicate()
			res.Duplicates++
			continue
		}
		job := model.RescoreJob{
			JobID:      s.newID(),
			UserID:     user,
			Reason:     reason,
			EnqueuedAt: s.now(),
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			s.deduper.Unrecord(ctx, key)
			s.logger.Warn(ctx, "failed to queue rescore job",
				logger.String("userID", user),
				logger.Error(err),
			)
			res.Failed++
			continue
		}
		res.Queued++
	}

	s.logger.Info(ctx, "rescore requested",
		logger.String("reason", reason),
		logger.Int("users", res.Users),
		logger.Int("queued", res.Queued),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}

// HandleRescore performs one queued rescore job.
func (s *Service) HandleRescore(ctx context.Context, job model.RescoreJob) error {
	defer s.deduper.Unrecord(ctx, rescoreKey(job.UserID))

	n, err := s.RescoreUser(ctx, job.UserID)
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "rescore job done",
		logger.String("jobID", job.JobID),
		logger.String("userID", job.UserID),
		logger.Int("rescored", n),
	)
	return nil
}

func rescoreKey(user string) string { return "rescore:" + user }

// Users returns every user holding books or a formula.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	var users []string
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	return users, err
}

// write runs fn as one unit of work while holding user's lock.
func (s *Service) write(ctx context.Context, user string, fn func(tx repository.Tx) error) error {
	unlock := s.locks.lock(user)
	defer unlock()
	return translate(s.store.Update(ctx, fn))
}

func (s *Service) read(ctx context.Context, fn func(tx repository.Tx) error) error {
	return translate(s.store.View(ctx, fn))
}

// owned loads id and checks that user owns it.
func owned(ctx context.Context, tx repository.Tx, user, id string) (model.Book, error) {
	b, err := tx.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, translate(err)
	}
	if b.UserID != user {
		metrics.RecordErrorByComponent("service", "ownership")
		return model.Book{}, ErrOwnership
	}
	return b, nil
}
