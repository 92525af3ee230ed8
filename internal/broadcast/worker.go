package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/leadbot/internal/notify"
	"github.com/kalambet/leadbot/internal/relay"
	"github.com/kalambet/leadbot/internal/storage"
	"golang.org/x/sync/errgroup"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Sender delivers one message to one number on behalf of an operator.
type Sender interface {
	SendText(ctx context.Context, operator, number, text string) (string, error)
	SendTemplate(ctx context.Context, operator, number, name, language string) (string, error)
}

// Worker processes broadcast jobs from the SQLite job queue.
type Worker struct {
	store       JobStore
	sender      Sender
	sink        notify.Sink
	poll        time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0 it defaults to 500ms;
// if concurrency is <= 0 it defaults to 4.
func NewWorker(store JobStore, sender Sender, sink notify.Sink, pollInterval time.Duration, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Worker{
		store:       store,
		sender:      sender,
		sink:        sink,
		poll:        pollInterval,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("broadcast worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single broadcast job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobText, JobTemplate})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("broadcast failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type delivery struct {
	number string
	err    error
}

// processJob sends to every target. It fails only when nothing was
// delivered, so a retry never repeats a message someone already received.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	var (
		mu      sync.Mutex
		results []delivery
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, number := range p.Targets {
		g.Go(func() error {
			var err error
			if job.Type == JobTemplate {
				_, err = w.sender.SendTemplate(gctx, p.Operator, number, p.Template, p.Language)
			} else {
				_, err = w.sender.SendText(gctx, p.Operator, number, p.Text)
			}
			mu.Lock()
			results = append(results, delivery{number: number, err: err})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var sent, skipped int
	var failed []string
	for _, d := range results {
		switch {
		case d.err == nil:
			sent++
		case errors.Is(d.err, relay.ErrBlocked):
			skipped++
		default:
			failed = append(failed, fmt.Sprintf("%s: %v", d.number, d.err))
		}
	}

	w.logger.Info("broadcast finished", "job_id", job.ID, "sent", sent, "skipped", skipped, "failed", len(failed))
	if sent == 0 && len(failed) > 0 {
		return fmt.Errorf("all %d sends failed, first: %s", len(failed), failed[0])
	}

	msg := fmt.Sprintf("Broadcast %s by %s finished: %d sent, %d skipped (blocked), %d failed",
		job.ID, p.Operator, sent, skipped, len(failed))
	if len(failed) > 0 {
		w.sink.Alert(msg + "\n" + strings.Join(failed, "\n"))
	} else {
		w.sink.Notify(msg)
	}
	return nil
}
