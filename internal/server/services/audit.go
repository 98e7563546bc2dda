package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
)

// AuditRecorder queues audit events on a bounded channel and writes them to
// the database from a single background consumer. Recording never blocks a
// request: when the queue is full the event is dropped with a warning.
// Audit rows are advisory, not part of any transaction that produced them.
type AuditRecorder struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	queue  chan *models.AuditEvent
}

// NewAuditRecorder constructs a recorder with a queue of the given size.
func NewAuditRecorder(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, queueSize int) *AuditRecorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &AuditRecorder{
		db:     db,
		repos:  repos,
		logger: logger,
		queue:  make(chan *models.AuditEvent, queueSize),
	}
}

// Record enqueues an event for asynchronous persistence. Safe to call from
// any goroutine; returns immediately.
func (a *AuditRecorder) Record(ctx context.Context, e *models.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case a.queue <- e:
	default:
		a.logger.Warn(ctx, "audit queue full, event dropped", "event_type", e.EventType)
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already buffered and returns. Insert failures are logged and skipped so a
// database hiccup never wedges the consumer.
func (a *AuditRecorder) Run(ctx context.Context) error {
	repo := a.repos.Audit(a.db)
	for {
		select {
		case e := <-a.queue:
			if err := repo.Insert(ctx, e); err != nil {
				a.logger.Error(ctx, "failed to persist audit event", "event_type", e.EventType, "error", err)
			}
		case <-ctx.Done():
			a.drain()
			return nil
		}
	}
}

// drain flushes buffered events with a short independent deadline, since the
// run context is already cancelled during shutdown.
func (a *AuditRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo := a.repos.Audit(a.db)
	for {
		select {
		case e := <-a.queue:
			if err := repo.Insert(ctx, e); err != nil {
				a.logger.Error(ctx, "failed to persist audit event on shutdown", "event_type", e.EventType, "error", err)
				return
			}
		default:
			return
		}
	}
}
