// Package relay connects WhatsApp traffic to the conversation engine. It
// applies the block list, forwards replies, keeps history and tells the
// operators what happened.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/leadbot/internal/conversation"
	"github.com/kalambet/leadbot/internal/leadstore"
	"github.com/kalambet/leadbot/internal/notify"
	"github.com/kalambet/leadbot/internal/storage"
	"github.com/kalambet/leadbot/internal/whatsapp"
)

// BotAuthor names the assistant in history logs.
const BotAuthor = "bot"

// ErrBlocked is returned by sends to a blocked contact.
var ErrBlocked = errors.New("contact is blocked")

// Turner runs one conversation turn.
type Turner interface {
	HandleTurn(ctx context.Context, t conversation.Turn) (conversation.Result, error)
}

// Messenger delivers messages to WhatsApp.
type Messenger interface {
	SendText(ctx context.Context, to, text string) (string, error)
	SendTemplate(ctx context.Context, to, name, language string) (string, error)
}

// Blocker answers whether a contact may be messaged.
type Blocker interface {
	IsBlocked(contactID string) (bool, error)
}

// Lists is the operator list membership the relay reads and maintains.
type Lists interface {
	InList(list, contactID string) (bool, error)
	AddToList(list, contactID string) (bool, error)
}

// History appends to per-contact logs.
type History interface {
	AppendHistory(ctx context.Context, contactID string, entries ...leadstore.HistoryEntry) error
}

// Deps wires a Relay.
type Deps struct {
	Turns     Turner
	Messenger Messenger
	Blocks    Blocker
	Lists     Lists
	History   History
	Sink      notify.Sink
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Outcome reports what HandleInbound did.
type Outcome struct {
	Blocked   bool
	Reply     string
	Sent      bool
	MessageID string
	Result    conversation.Result
}

// Relay handles inbound messages and operator sends.
type Relay struct {
	turns     Turner
	messenger Messenger
	blocks    Blocker
	lists     Lists
	history   History
	sink      notify.Sink
	now       func() time.Time
	logger    *slog.Logger

	locks conversation.KeyedMutex
}

// New creates a Relay.
func New(d Deps) *Relay {
	r := &Relay{
		turns:     d.Turns,
		messenger: d.Messenger,
		blocks:    d.Blocks,
		lists:     d.Lists,
		history:   d.History,
		sink:      d.Sink,
		now:       d.Clock,
		logger:    d.Logger,
	}
	if r.sink == nil {
		r.sink = notify.Nop{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// HandleInbound answers one inbound message. Messages from the same contact
// are handled one at a time, in arrival order.
func (r *Relay) HandleInbound(ctx context.Context, in whatsapp.Inbound) (Outcome, error) {
	unlock := r.locks.Lock(in.ContactID)
	defer unlock()

	receivedAt := r.now()
	logger := r.logger.With("contact_id", in.ContactID)

	flagged := r.inList(storage.ListFlagged, in.ContactID)
	if flagged {
		r.sink.Alert(fmt.Sprintf("ALERT: Incoming message from flagged contact\n%s (%s)\nMessage: %s",
			in.DisplayName, in.ContactID, in.Text))
	}

	blocked, err := r.blocks.IsBlocked(in.ContactID)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking block list: %w", err)
	}
	if blocked {
		logger.Info("message from blocked contact ignored")
		r.sink.Notify(fmt.Sprintf("Blocked contact %s (%s) wrote:\n%s", in.DisplayName, in.ContactID, in.Text))
		return Outcome{Blocked: true}, nil
	}

	res, err := r.turns.HandleTurn(ctx, conversation.Turn{
		ContactID:   in.ContactID,
		DisplayName: in.DisplayName,
		Text:        in.Text,
	})
	if err != nil {
		r.sink.Alert(fmt.Sprintf("Failed to answer %s (%s): %v", in.DisplayName, in.ContactID, err))
		r.appendHistory(ctx, in.ContactID, leadstore.Inbound(in.DisplayName, in.Text, receivedAt))
		return Outcome{}, err
	}

	out := Outcome{Reply: whatsapp.FormatText(res.Reply), Result: res}
	r.sink.Notify(summary(in, out.Reply, res))

	if _, err := r.lists.AddToList(storage.ListContacts, in.ContactID); err != nil {
		logger.Warn("adding to contacts list", "error", err)
	}

	entries := []leadstore.HistoryEntry{leadstore.Inbound(in.DisplayName, in.Text, receivedAt)}
	if out.Reply == "" {
		logger.Info("model produced no reply text, nothing sent")
		r.appendHistory(ctx, in.ContactID, entries...)
		return out, nil
	}

	id, err := r.messenger.SendText(ctx, whatsapp.Recipient(in.ContactID), out.Reply)
	if err != nil {
		r.sink.Alert(fmt.Sprintf("Failed to deliver reply to %s (%s): %v", in.DisplayName, in.ContactID, err))
		r.appendHistory(ctx, in.ContactID, entries...)
		return out, fmt.Errorf("sending reply: %w", err)
	}
	out.Sent = true
	out.MessageID = id

	entries = append(entries, leadstore.Outbound(BotAuthor, out.Reply, r.now()))
	r.appendHistory(ctx, in.ContactID, entries...)

	if flagged {
		r.sink.Alert(fmt.Sprintf("ALERT: Bot Replied to %s (%s)\nReply: %s", in.DisplayName, in.ContactID, out.Reply))
	}
	return out, nil
}

// SendText sends an operator-authored message to number.
func (r *Relay) SendText(ctx context.Context, operator, number, text string) (string, error) {
	return r.direct(ctx, operator, number, text, func(to string) (string, error) {
		return r.messenger.SendText(ctx, to, text)
	})
}

// SendTemplate sends a template message on behalf of operator.
func (r *Relay) SendTemplate(ctx context.Context, operator, number, name, language string) (string, error) {
	return r.direct(ctx, operator, number, "[template: "+name+"]", func(to string) (string, error) {
		return r.messenger.SendTemplate(ctx, to, name, language)
	})
}

func (r *Relay) direct(ctx context.Context, operator, number, logText string, send func(to string) (string, error)) (string, error) {
	contactID := whatsapp.Recipient(number)
	if err := leadstore.ValidateContactID(contactID); err != nil {
		return "", err
	}
	if operator == "" {
		operator = "operator"
	}

	unlock := r.locks.Lock(contactID)
	defer unlock()

	blocked, err := r.blocks.IsBlocked(contactID)
	if err != nil {
		return "", fmt.Errorf("checking block list: %w", err)
	}
	if blocked {
		return "", ErrBlocked
	}

	id, err := send(contactID)
	if err != nil {
		return "", fmt.Errorf("sending to %s: %w", number, err)
	}

	r.appendHistory(ctx, contactID, leadstore.Outbound(operator, logText, r.now()))
	if r.inList(storage.ListFlagged, contactID) {
		r.sink.Alert(fmt.Sprintf("ALERT: %s sent a message to flagged contact %s\nMessage: %s", operator, contactID, logText))
	}
	r.sink.Notify(fmt.Sprintf("Sent to %s by %s:\n%s", number, operator, logText))
	return id, nil
}

func (r *Relay) inList(list, contactID string) bool {
	ok, err := r.lists.InList(list, contactID)
	if err != nil {
		r.logger.Warn("checking list membership", "list", list, "contact_id", contactID, "error", err)
		return false
	}
	return ok
}

func (r *Relay) appendHistory(ctx context.Context, contactID string, entries ...leadstore.HistoryEntry) {
	if err := r.history.AppendHistory(ctx, contactID, entries...); err != nil {
		r.logger.Warn("appending history", "contact_id", contactID, "error", err)
	}
}

func summary(in whatsapp.Inbound, reply string, res conversation.Result) string {
	var b strings.Builder
	b.WriteString("WhatsApp Message Received\n")
	fmt.Fprintf(&b, "From: %s (%s)\n", in.DisplayName, in.ContactID)
	fmt.Fprintf(&b, "Message: %s\n", in.Text)
	if reply == "" {
		b.WriteString("Reply: (none)\n")
	} else {
		fmt.Fprintf(&b, "Reply: %s\n", reply)
	}
	rec := res.Record
	fmt.Fprintf(&b, "Handoff: %t\n", rec.Handoff)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "Tags: %s\n", strings.Join(rec.Tags, ", "))
	fmt.Fprintf(&b, "Notes: %s", rec.Notes)
	return b.String()
}
