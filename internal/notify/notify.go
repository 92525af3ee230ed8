// Package notify delivers operator notifications. Routine activity goes to
// one set of channels and alerts to another; delivery is asynchronous and
// failures are only logged.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink is the fire-and-forget surface the rest of the service uses.
type Sink interface {
	// Notify records routine activity.
	Notify(text string)
	// Alert asks for operator attention.
	Alert(text string)
}

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(string) {}
func (Nop) Alert(string)  {}

// LogSender writes messages to the structured log. It backs deployments
// without any chat channel configured.
type LogSender struct {
	Logger *slog.Logger
	Kind   string
}

func (l LogSender) Name() string { return "log" }

func (l LogSender) Send(_ context.Context, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "kind", l.Kind, "text", text)
	return nil
}

type kind int

const (
	kindNotify kind = iota
	kindAlert
)

type message struct {
	kind kind
	text string
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Routine []Sender
	Alerts  []Sender
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
	// QueueSize is how many undelivered messages may wait before new ones
	// are dropped.
	QueueSize int
	Logger    *slog.Logger
}

// Dispatcher implements Sink with a bounded queue drained by one goroutine,
// so callers never wait on the network and messages keep their order.
type Dispatcher struct {
	routine []Sender
	alerts  []Sender
	timeout time.Duration
	logger  *slog.Logger

	queue chan message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a Dispatcher. Call Close to flush and stop it.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Dispatcher{
		routine: cfg.Routine,
		alerts:  cfg.Alerts,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		queue:   make(chan message, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(text string) { d.enqueue(message{kind: kindNotify, text: text}) }
func (d *Dispatcher) Alert(text string)  { d.enqueue(message{kind: kindAlert, text: text}) }

func (d *Dispatcher) enqueue(m message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification dropped after close", "text", m.text)
		return
	}
	select {
	case d.queue <- m:
	default:
		d.logger.Warn("notification queue full, dropping message", "text", m.text)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for m := range d.queue {
		senders := d.routine
		if m.kind == kindAlert {
			senders = d.alerts
		}
		for _, s := range senders {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, m.text); err != nil {
				d.logger.Warn("delivering notification", "channel", s.Name(), "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting messages and waits until the queue drains or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
