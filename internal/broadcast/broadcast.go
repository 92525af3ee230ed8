// Package broadcast queues operator broadcasts as jobs and delivers them in
// the background, so a large send never holds up a request.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kalambet/leadbot/internal/storage"
	"github.com/kalambet/leadbot/internal/whatsapp"
)

const (
	// JobText sends free-form text to everyone on the contacts list.
	JobText = "broadcast_text"
	// JobTemplate sends an approved template to the broadcast list.
	JobTemplate = "broadcast_template"
)

var (
	ErrNoRecipients = errors.New("no recipients")
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidNumber is wrapped for template targets that are not UAE
	// mobile numbers.
	ErrInvalidNumber = errors.New("invalid broadcast number")
)

// Request describes one broadcast.
type Request struct {
	Operator string
	// Text is set for text broadcasts, Template for template broadcasts.
	Text     string
	Template string
	Language string
	// Targets overrides the list the broadcast would otherwise go to.
	Targets []string
}

type payload struct {
	Operator string   `json:"operator"`
	Text     string   `json:"text,omitempty"`
	Template string   `json:"template,omitempty"`
	Language string   `json:"language,omitempty"`
	Targets  []string `json:"targets"`
}

// Queue is the storage the broadcast service enqueues into.
type Queue interface {
	EnqueueJob(job storage.Job) error
	ListMembers(list string) ([]string, error)
}

// Service turns requests into queued jobs.
type Service struct {
	queue Queue
}

// NewService creates a Service.
func NewService(q Queue) *Service {
	return &Service{queue: q}
}

// Enqueue resolves the recipients for r, stores the job and returns its id.
func (s *Service) Enqueue(_ context.Context, r Request) (string, error) {
	jobType, list := JobText, storage.ListContacts
	if r.Template != "" {
		jobType, list = JobTemplate, storage.ListBroadcast
	} else if r.Text == "" {
		return "", ErrEmptyMessage
	}

	targets := r.Targets
	if len(targets) == 0 {
		var err error
		if targets, err = s.queue.ListMembers(list); err != nil {
			return "", fmt.Errorf("loading %s list: %w", list, err)
		}
	}
	if jobType == JobTemplate {
		for _, n := range targets {
			if !whatsapp.ValidUAEMobile(n) {
				return "", fmt.Errorf("%w %q", ErrInvalidNumber, n)
			}
		}
	}
	if len(targets) == 0 {
		return "", ErrNoRecipients
	}

	data, err := json.Marshal(payload{
		Operator: r.Operator,
		Text:     r.Text,
		Template: r.Template,
		Language: r.Language,
		Targets:  targets,
	})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(data),
	}
	if err := s.queue.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing broadcast: %w", err)
	}
	return job.ID, nil
}
