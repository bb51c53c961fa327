// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/oliverandrich/authnotify/internal/i18n"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

var (
	// ErrQueueFull is returned when the queue has no free slot.
	ErrQueueFull = errors.New("email queue is full")
	// ErrQueueClosed is returned after Stop has been called.
	ErrQueueClosed = errors.New("email queue is closed")
	// ErrNoRecipient is returned when a message has no recipient.
	ErrNoRecipient = errors.New("email has no recipient")
)

const sendTimeout = 30 * time.Second

// Job is one scheduled email.
type Job struct {
	CreatedAt time.Time
	ID        string
	Locale    string
	Message   Message
}

// Queue delivers emails asynchronously on a single worker goroutine.
// Failed deliveries are logged and dropped.
type Queue struct {
	sender   Sender
	renderer *Renderer
	jobs     chan *Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	size     int
	closed   bool
}

// NewQueue creates a queue holding at most size pending jobs.
func NewQueue(sender Sender, renderer *Renderer, size int) *Queue {
	if size <= 0 {
		size = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		sender:   sender,
		renderer: renderer,
		jobs:     make(chan *Job, size),
		ctx:      ctx,
		cancel:   cancel,
		size:     size,
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	slog.Info("email queue started", "capacity", q.size)
}

// Queue schedules template for delivery. configure fills in recipient,
// sender and subject. It never blocks: a full queue returns ErrQueueFull.
func (q *Queue) Queue(ctx context.Context, template string, data any, configure func(*Message)) error {
	msg := Message{Template: template, Data: data}
	if configure != nil {
		configure(&msg)
	}
	if msg.To == "" {
		return ErrNoRecipient
	}

	job := &Job{
		ID:        uuid.NewString(),
		Message:   msg,
		Locale:    i18n.GetLocale(ctx),
		CreatedAt: time.Now(),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		slog.Debug("email queued", "id", job.ID, "template", template, "to", msg.To)
		return nil
	default:
		slog.Warn("email queue full, dropping email", "template", template, "to", msg.To)
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, q.size)
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Stop refuses new jobs, delivers the pending ones and waits for the worker
// or until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("email queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping email queue: %w", ctx.Err())
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			q.process(job)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			q.process(job)
		default:
			return
		}
	}
}

func (q *Queue) process(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while sending email", "id", job.ID, "panic", r)
		}
	}()

	// The request that queued the job is gone by now; only its locale survives.
	ctx := i18n.WithLocale(context.Background(), language.Make(job.Locale))

	body, err := q.renderer.Render(ctx, job.Message.Template, job.Message.Data)
	if err != nil {
		slog.Error("failed to render email", "id", job.ID, "template", job.Message.Template, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	if err := q.sender.Send(sendCtx, &job.Message, body); err != nil {
		slog.Error("failed to send email",
			"id", job.ID,
			"template", job.Message.Template,
			"to", job.Message.To,
			"error", err,
		)
		return
	}

	slog.Info("email sent",
		"id", job.ID,
		"template", job.Message.Template,
		"to", job.Message.To,
		"queued_for", start.Sub(job.CreatedAt),
	)
}
