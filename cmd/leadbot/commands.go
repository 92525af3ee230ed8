package main

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/leadbot/internal/api"
	"github.com/kalambet/leadbot/internal/blocklist"
	"github.com/kalambet/leadbot/internal/config"
	"github.com/kalambet/leadbot/internal/lead"
	"github.com/kalambet/leadbot/internal/storage"
)

// --- leads ---

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect qualified leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, most recently contacted first",
	Long: `List leads, most recently contacted first.

Examples:
  leadbot leads list
  leadbot leads list --status qualified
  leadbot leads list --grouped`,
	RunE: func(cmd *cobra.Command, args []string) error {
		grouped, _ := cmd.Flags().GetBool("grouped")
		statusFilter, _ := cmd.Flags().GetString("status")

		var want lead.Status
		if statusFilter != "" {
			st, ok := lead.ParseStatus(statusFilter)
			if !ok {
				return fmt.Errorf("unknown status %q", statusFilter)
			}
			want = st
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if grouped {
			resp, err := client.get(cmd.Context(), "/api/leads?grouped=true")
			if err != nil {
				return err
			}
			var ov lead.Overview
			if err := decodeJSON(resp, &ov); err != nil {
				return err
			}
			printOverview(ov, want)
			return nil
		}

		resp, err := client.get(cmd.Context(), "/api/leads")
		if err != nil {
			return err
		}
		var entries []lead.Entry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		now := time.Now()
		shown := 0
		for _, e := range entries {
			if want != "" && e.Status != want {
				continue
			}
			printEntry(e, now)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(stdout, "No leads found.")
		}
		return nil
	},
}

func printEntry(e lead.Entry, now time.Time) {
	handoff := ""
	if e.Handoff {
		handoff = colorize(colorYellow, " [handoff]")
	}
	fmt.Fprintf(stdout, "%s  %-14s %s%s\n",
		colorize(colorCyan, e.ContactID),
		e.Status,
		lead.FormatSince(e.LastContacted, now),
		handoff,
	)
	if len(e.Tags) > 0 {
		fmt.Fprintf(stdout, "    Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if e.Notes != "" {
		fmt.Fprintf(stdout, "    Notes: %s\n", truncate(e.Notes, 120))
	}
}

func printOverview(ov lead.Overview, only lead.Status) {
	now := time.Now()
	statuses := lead.Statuses()
	slices.Reverse(statuses)

	sections := []struct {
		title   string
		buckets map[lead.Status][]lead.Entry
	}{
		{"New leads (last 72h)", ov.Recent},
		{"Older leads", ov.Older},
	}
	for _, sec := range sections {
		fmt.Fprintln(stdout, colorize(colorBold, sec.title))
		for _, st := range statuses {
			if only != "" && st != only {
				continue
			}
			entries := sec.buckets[st]
			fmt.Fprintf(stdout, "  %s (%d)\n", st, len(entries))
			for _, e := range entries {
				fmt.Fprint(stdout, "    ")
				printEntry(e, now)
			}
		}
	}
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <contact-id>",
	Short: "Show one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/leads/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var view api.LeadView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(view)
		}

		fmt.Fprintln(stdout, colorize(colorBold, view.ContactID))
		fmt.Fprintf(stdout, "  Status:         %s\n", view.Status)
		fmt.Fprintf(stdout, "  Handoff:        %t\n", view.Handoff)
		fmt.Fprintf(stdout, "  Tags:           %s\n", strings.Join(view.Tags, ", "))
		fmt.Fprintf(stdout, "  Notes:          %s\n", view.Notes)
		fmt.Fprintf(stdout, "  Last contacted: %s\n", view.LastContactedDisplay)
		if view.Blocked {
			fmt.Fprintln(stdout, colorize(colorRed, "  Blocked"))
		}
		if view.Flagged {
			fmt.Fprintln(stdout, colorize(colorYellow, "  Flagged"))
		}
		return nil
	},
}

func init() {
	leadsListCmd.Flags().Bool("grouped", false, "group by status and recency")
	leadsListCmd.Flags().String("status", "", "only show leads with this status")
	leadsShowCmd.Flags().Bool("json", false, "print the raw JSON")
	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Read or delete a contact's conversation log",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <contact-id>",
	Short: "Print the conversation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		text, err := readText(resp)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, text)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <contact-id>",
	Short: "Delete the conversation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/history/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("History for %s deleted", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- blocks ---

func putBlock(cmd *cobra.Command, contactID string, seconds int) (blocklist.Status, error) {
	client, err := newAPIClient()
	if err != nil {
		return blocklist.Status{}, err
	}
	resp, err := client.put(cmd.Context(), "/api/blocks/"+url.PathEscape(contactID), api.BlockRequest{Seconds: seconds})
	if err != nil {
		return blocklist.Status{}, err
	}
	var st blocklist.Status
	if err := decodeJSON(resp, &st); err != nil {
		return blocklist.Status{}, err
	}
	return st, nil
}

func describeBlock(st blocklist.Status) string {
	if st.Permanent {
		return "blocked permanently"
	}
	return fmt.Sprintf("blocked for %s (until %s)",
		st.Remaining.Round(time.Second), st.ExpiresAt.In(lead.Zone).Format("2006-01-02 15:04:05"))
}

var blockCmd = &cobra.Command{
	Use:   "block <contact-id>",
	Short: "Block a contact permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := putBlock(cmd, args[0], 0); err != nil {
			return err
		}
		printSuccess("%s blocked", args[0])
		return nil
	},
}

var tempBlockCmd = &cobra.Command{
	Use:   "tempblock <contact-id> <seconds>",
	Short: "Block a contact for a while, extending an active block",
	Long: `Block a contact for the given number of seconds (at least 90).
Running it again while the block is active adds the seconds to it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds <= 0 {
			return fmt.Errorf("seconds must be a positive integer, got %q", args[1])
		}
		st, err := putBlock(cmd, args[0], seconds)
		if err != nil {
			return err
		}
		printSuccess("%s %s", args[0], describeBlock(st))
		return nil
	},
}

var blockTimeCmd = &cobra.Command{
	Use:   "blocktime <contact-id>",
	Short: "Show how long a contact stays blocked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/blocks/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var st blocklist.Status
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", args[0], describeBlock(st))
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <contact-id>",
	Short: "Lift a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/blocks/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s unblocked", args[0])
		return nil
	},
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List blocked contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/blocks")
		if err != nil {
			return err
		}
		var blocks []blocklist.Status
		if err := decodeJSON(resp, &blocks); err != nil {
			return err
		}
		if len(blocks) == 0 {
			fmt.Fprintln(stdout, "No blocked contacts.")
			return nil
		}
		for _, st := range blocks {
			fmt.Fprintf(stdout, "%s  %s\n", colorize(colorCyan, st.ContactID), describeBlock(st))
		}
		return nil
	},
}

// --- operator lists ---

// newListCmd builds the list/add/remove/set subcommands for one stored list.
func newListCmd(use, list, short string) *cobra.Command {
	parent := &cobra.Command{Use: use, Short: short}
	path := "/api/lists/" + list

	parent.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the members",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), path)
			if err != nil {
				return err
			}
			var members []string
			if err := decodeJSON(resp, &members); err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Fprintln(stdout, "The list is empty.")
				return nil
			}
			for _, m := range members {
				fmt.Fprintln(stdout, m)
			}
			return nil
		},
	})

	parent.AddCommand(&cobra.Command{
		Use:   "add <entry>",
		Short: "Add an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.put(cmd.Context(), path+"/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			if result["status"] == "exists" {
				printWarning("%s is already in %s", args[0], use)
				return nil
			}
			printSuccess("Added %s to %s", args[0], use)
			return nil
		},
	})

	parent.AddCommand(&cobra.Command{
		Use:   "remove <entry>",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.delete(cmd.Context(), path+"/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Removed %s from %s", args[0], use)
			return nil
		},
	})

	parent.AddCommand(&cobra.Command{
		Use:   "set <entry>...",
		Short: "Replace every entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.put(cmd.Context(), path, api.ListRequest{Members: splitList(args)})
			if err != nil {
				return err
			}
			var result map[string]any
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("%s now has %v entries", use, result["count"])
			return nil
		},
	})

	return parent
}

// splitList accepts entries as separate arguments, comma-separated, or both.
func splitList(args []string) []string {
	var out []string
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send <number> <message>",
	Short: "Send a WhatsApp message to a contact",
	Long: `Send a WhatsApp message to a contact as an operator.

Examples:
  leadbot send +971501234567 "Thanks, a consultant will call you today"
  leadbot send 971501234567 "Hello" --operator sara`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")
		text := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/send", api.SendRequest{
			Operator: operator,
			To:       args[0],
			Text:     text,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Sent to %s (message %s)", args[0], result["message_id"])
		return nil
	},
}

func init() {
	sendCmd.Flags().String("operator", "", "operator name recorded in the history log")
}

// --- broadcast ---

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Queue a message to many contacts",
}

func queueBroadcast(cmd *cobra.Command, req api.BroadcastRequest) error {
	req.Operator, _ = cmd.Flags().GetString("operator")
	targets, _ := cmd.Flags().GetStringSlice("to")
	req.Targets = targets

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), "/api/broadcast", req)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Queued broadcast job %s", result["id"])
	return nil
}

var broadcastTextCmd = &cobra.Command{
	Use:   "text <message>",
	Short: "Send a text to every stored contact",
	Long: `Send a text to every stored contact, or to --to numbers.

Examples:
  leadbot broadcast text "Our showroom is open this Saturday"
  leadbot broadcast text "Hi" --to 971501234567,971507654321`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueBroadcast(cmd, api.BroadcastRequest{Text: strings.Join(args, " ")})
	},
}

var broadcastTemplateCmd = &cobra.Command{
	Use:   "template <name>",
	Short: "Send an approved template to the broadcast number list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		return queueBroadcast(cmd, api.BroadcastRequest{Template: args[0], Language: language})
	},
}

func init() {
	for _, c := range []*cobra.Command{broadcastTextCmd, broadcastTemplateCmd} {
		c.Flags().String("operator", "", "operator name recorded in the history log")
		c.Flags().StringSlice("to", nil, "explicit recipients instead of the stored list")
	}
	broadcastTemplateCmd.Flags().String("language", "en_US", "template language code")
	broadcastCmd.AddCommand(broadcastTextCmd)
	broadcastCmd.AddCommand(broadcastTemplateCmd)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect broadcast jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/jobs?limit=%d", limit))
		if err != nil {
			return err
		}
		var jobs []storage.Job
		if err := decodeJSON(resp, &jobs); err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(stdout, "No jobs found.")
			return nil
		}
		for _, j := range jobs {
			status := j.Status
			switch j.Status {
			case "completed":
				status = colorize(colorGreen, status)
			case "failed":
				status = colorize(colorRed, status)
			}
			fmt.Fprintf(stdout, "%s  %-18s %-9s %s\n",
				colorize(colorCyan, j.ID[:min(8, len(j.ID))]),
				j.Type,
				status,
				j.CreatedAt.In(lead.Zone).Format("2006-01-02 15:04"),
			)
			if j.LastError != "" {
				fmt.Fprintf(stdout, "    %s\n", truncate(j.LastError, 120))
			}
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var job storage.Job
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		return printJSON(job)
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
