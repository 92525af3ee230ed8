package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/leadbot/internal/blocklist"
	"github.com/kalambet/leadbot/internal/lead"
	"github.com/kalambet/leadbot/internal/leadstore"
	"github.com/kalambet/leadbot/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Leads  *leadstore.Store
	Blocks *blocklist.List
	Sender DirectSender // optional; if nil, send_message returns an error
	Clock  func() time.Time
}

// NewMCPServer creates an MCP server exposing lead and contact management
// to an operator's assistant.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	s := server.NewMCPServer(
		"leadbot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("leadbot: WhatsApp lead qualification. Inspect leads and conversation history, message contacts, manage blocks."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_leads",
			mcp.WithDescription("List known leads, most recently contacted first."),
			mcp.WithString("status", mcp.Description("Only leads with this status (Cold, New Lead, Qualified, Very Qualified)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of leads (default 50)")),
		),
		mcpListLeads(deps),
	)

	s.AddTool(
		mcp.NewTool("get_lead",
			mcp.WithDescription("Show the qualification record of one contact."),
			mcp.WithString("contact_id", mcp.Description("WhatsApp id of the contact"), mcp.Required()),
		),
		mcpGetLead(deps),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return the conversation log with one contact."),
			mcp.WithString("contact_id", mcp.Description("WhatsApp id of the contact"), mcp.Required()),
		),
		mcpGetHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a WhatsApp text message to a contact as an operator."),
			mcp.WithString("to", mcp.Description("Recipient number or WhatsApp id"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
			mcp.WithString("operator", mcp.Description("Name recorded in the history log (default mcp)")),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("block_contact",
			mcp.WithDescription("Stop the bot from answering a contact, permanently or for a number of seconds (minimum 90)."),
			mcp.WithString("contact_id", mcp.Description("WhatsApp id of the contact"), mcp.Required()),
			mcp.WithNumber("seconds", mcp.Description("Temporary block length; omit for a permanent block")),
		),
		mcpBlockContact(deps),
	)

	s.AddTool(
		mcp.NewTool("unblock_contact",
			mcp.WithDescription("Remove any block on a contact."),
			mcp.WithString("contact_id", mcp.Description("WhatsApp id of the contact"), mcp.Required()),
		),
		mcpUnblockContact(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"leads://overview",
			"Lead Overview",
			mcp.WithResourceDescription("Leads grouped by status, split into contacted within 72 hours and older"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOverview(deps),
	)

	return s
}

func mcpListLeads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var want lead.Status
		if raw := req.GetString("status", ""); raw != "" {
			st, ok := lead.ParseStatus(raw)
			if !ok {
				return mcpError(fmt.Sprintf("unknown status %q", raw)), nil
			}
			want = st
		}
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}

		entries, err := deps.Leads.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list leads: %v", err)), nil
		}

		type leadSummary struct {
			ContactID     string      `json:"contact_id"`
			Status        lead.Status `json:"status"`
			Handoff       bool        `json:"handoff"`
			Tags          []string    `json:"tags"`
			LastContacted string      `json:"last_contacted"`
		}
		now := deps.Clock()
		results := []leadSummary{}
		for _, e := range entries {
			if want != "" && e.Status != want {
				continue
			}
			results = append(results, leadSummary{
				ContactID:     e.ContactID,
				Status:        e.Status,
				Handoff:       e.Handoff,
				Tags:          e.Tags,
				LastContacted: lead.FormatSince(e.LastContacted, now),
			})
			if len(results) == limit {
				break
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetLead(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("contact_id")
		if err != nil {
			return mcpError("contact_id is required"), nil
		}
		rec, ok, err := deps.Leads.Lookup(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get lead: %v", err)), nil
		}
		if !ok {
			return mcpError(fmt.Sprintf("no lead for %s", id)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Contact: %s\n", id)
		fmt.Fprintf(&b, "Status: %s\n", rec.Status)
		fmt.Fprintf(&b, "Handoff: %t\n", rec.Handoff)
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(rec.Tags, ", "))
		fmt.Fprintf(&b, "Notes: %s\n", rec.Notes)
		fmt.Fprintf(&b, "Last contacted: %s\n", lead.FormatSince(rec.LastContacted, deps.Clock()))
		fmt.Fprintf(&b, "Previous reply: %s", rec.PreviousReply)
		return mcpText(b.String()), nil
	}
}

func mcpGetHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("contact_id")
		if err != nil {
			return mcpError("contact_id is required"), nil
		}
		text, err := deps.Leads.History(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		if text == "" {
			return mcpText(fmt.Sprintf("No history for %s", id)), nil
		}
		return mcpText(text), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Sender == nil {
			return mcpError("sending not available: no WhatsApp client configured"), nil
		}
		to, err := req.RequireString("to")
		if err != nil {
			return mcpError("to is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		operator := req.GetString("operator", "mcp")

		id, err := deps.Sender.SendText(ctx, operator, to, text)
		if err != nil {
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Sent to %s (message id %s)", to, id)), nil
	}
}

func mcpBlockContact(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("contact_id")
		if err != nil {
			return mcpError("contact_id is required"), nil
		}
		if err := leadstore.ValidateContactID(id); err != nil {
			return mcpError(err.Error()), nil
		}

		seconds := req.GetInt("seconds", 0)
		if seconds <= 0 {
			if err := deps.Blocks.Block(id); err != nil {
				return mcpError(fmt.Sprintf("failed to block: %v", err)), nil
			}
			return mcpText(fmt.Sprintf("Blocked %s permanently", id)), nil
		}

		st, err := deps.Blocks.TempBlock(id, time.Duration(seconds)*time.Second)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to block: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Blocked %s for %s", id, st.Remaining.Round(time.Second))), nil
	}
}

func mcpUnblockContact(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("contact_id")
		if err != nil {
			return mcpError("contact_id is required"), nil
		}
		err = deps.Blocks.Unblock(id)
		if errors.Is(err, blocklist.ErrNotBlocked) {
			return mcpText(fmt.Sprintf("%s was not blocked", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to unblock: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Unblocked %s", id)), nil
	}
}

func mcpResourceOverview(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Leads.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list leads: %w", err)
		}

		b, err := json.Marshal(lead.Group(entries, deps.Clock(), RecentWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal overview: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
