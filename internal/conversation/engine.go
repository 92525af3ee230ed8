// Package conversation runs one lead-qualification turn: it loads what is
// known about a contact, asks the model for a reply, extracts the metadata
// the model declared, persists the merged record and raises an alert when
// the lead warms up.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/leadbot/internal/lead"
)

const defaultModelTimeout = 60 * time.Second

// Completer produces the raw model output for a system instruction and prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LeadStore is the persistence the engine needs.
type LeadStore interface {
	Lookup(ctx context.Context, contactID string) (lead.Record, bool, error)
	Put(ctx context.Context, contactID string, r lead.Record, previousReply string) (lead.Record, error)
}

// Alerter receives operator-attention messages. Implementations must not block.
type Alerter interface {
	Alert(text string)
}

// Turn is one inbound message.
type Turn struct {
	ContactID   string
	DisplayName string
	Text        string
}

// Result is the outcome of a successful turn.
type Result struct {
	Reply          string
	Record         lead.Record
	PreviousStatus lead.Status
	NewContact     bool
	Escalated      bool
}

// Config tunes an Engine.
type Config struct {
	Instruction  string
	ModelTimeout time.Duration
	Clock        func() time.Time
	Logger       *slog.Logger
}

// Engine turns inbound messages into replies and lead state.
type Engine struct {
	model   Completer
	store   LeadStore
	alerter Alerter

	instruction  string
	modelTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	locks   KeyedMutex
	replies *ReplyCache
}

// New creates an Engine. A nil alerter disables escalation alerts.
func New(model Completer, store LeadStore, alerter Alerter, cfg Config) *Engine {
	e := &Engine{
		model:        model,
		store:        store,
		alerter:      alerter,
		instruction:  cfg.Instruction,
		modelTimeout: cfg.ModelTimeout,
		now:          cfg.Clock,
		logger:       cfg.Logger,
		replies:      NewReplyCache(),
	}
	if e.instruction == "" {
		e.instruction = DefaultInstruction
	}
	if e.modelTimeout <= 0 {
		e.modelTimeout = defaultModelTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// LastReply returns the cached clean reply for contactID.
func (e *Engine) LastReply(contactID string) (string, bool) {
	return e.replies.Get(contactID)
}

// HandleTurn runs one turn for t.ContactID. Turns for the same contact are
// serialized. On error nothing was persisted or cached.
func (e *Engine) HandleTurn(ctx context.Context, t Turn) (Result, error) {
	unlock := e.locks.Lock(t.ContactID)
	defer unlock()

	prior, existed, err := e.store.Lookup(ctx, t.ContactID)
	if err != nil {
		return Result{}, fmt.Errorf("loading lead state: %w", err)
	}

	previousReply := e.previousReply(t.ContactID, prior, existed)
	prompt := e.buildPrompt(prior, existed, previousReply, t)

	modelCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	raw, err := e.model.Complete(modelCtx, e.instruction, prompt)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("calling model: %w", err)
	}

	meta, reply := lead.ParseReply(raw)
	merged := lead.Merge(prior, existed, meta)
	if _, ok := lead.ParseStatus(meta.Status); !ok {
		e.logger.Warn("model declared unknown status", "contact_id", t.ContactID, "status", meta.Status, "kept", merged.Status)
	}

	stored, err := e.store.Put(ctx, t.ContactID, merged, previousReply)
	if err != nil {
		return Result{}, fmt.Errorf("persisting lead state: %w", err)
	}
	e.replies.Set(t.ContactID, reply)

	res := Result{
		Reply:          reply,
		Record:         stored,
		PreviousStatus: prior.Status,
		NewContact:     !existed,
	}
	if existed && lead.Escalated(prior.Status, stored.Status) {
		res.Escalated = true
		e.alert(t, prior.Status, stored)
	}

	e.logger.Info("turn handled",
		"contact_id", t.ContactID,
		"status", stored.Status,
		"handoff", stored.Handoff,
		"escalated", res.Escalated,
	)
	return res, nil
}

// buildPrompt shows the model its last reply to this contact, not the stored
// previous_reply, which trails by one turn.
func (e *Engine) buildPrompt(prior lead.Record, existed bool, lastReply string, t Turn) string {
	var preamble string
	if existed {
		shown := prior
		shown.PreviousReply = lastReply
		preamble = lead.FormatPreamble(shown, lead.FormatSince(prior.LastContacted, e.now()))
	}
	return preamble + "\n" + t.DisplayName + ": " + t.Text
}

// previousReply is the reply cached before this turn. After a restart the
// cache is empty and the persisted value stands in.
func (e *Engine) previousReply(contactID string, prior lead.Record, existed bool) string {
	if r, ok := e.replies.Get(contactID); ok {
		return r
	}
	if existed {
		return prior.PreviousReply
	}
	return ""
}

func (e *Engine) alert(t Turn, from lead.Status, r lead.Record) {
	if e.alerter == nil {
		return
	}
	var b strings.Builder
	b.WriteString("Status Upgrade Alert\n")
	fmt.Fprintf(&b, "Contact: %s (%s)\n", t.DisplayName, t.ContactID)
	fmt.Fprintf(&b, "Status: %s -> %s\n", from, r.Status)
	fmt.Fprintf(&b, "Handoff: %t\n", r.Handoff)
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(r.Tags, ", "))
	}
	if r.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", r.Notes)
	}
	e.alerter.Alert(strings.TrimRight(b.String(), "\n"))
}
