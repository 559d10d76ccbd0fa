package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/juste-un-gars/lifetracker_sync/internal/database"
	syncpkg "github.com/juste-un-gars/lifetracker_sync/internal/sync"
)

func newTable(out io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func printResult(out io.Writer, r *syncpkg.SyncResult) {
	label := "Sync"
	if r.DryRun {
		label = "Dry run"
	}
	fmt.Fprintf(out, "%s %s: %s in %s\n", label, statusWord(r), r.Summary(), r.Duration.Round(time.Millisecond))
	if r.BytesTransferred > 0 {
		fmt.Fprintf(out, "  %s transferred\n", formatSize(r.BytesTransferred))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintln(out)
		printConflicts(out, r.Conflicts)
	}
}

func statusWord(r *syncpkg.SyncResult) string {
	switch database.ResultStatus(r) {
	case database.HistorySuccess:
		return "completed"
	case database.HistoryCancelled:
		return "cancelled"
	case database.HistoryPartial:
		return "partially completed"
	default:
		return "failed"
	}
}

func printConflicts(out io.Writer, conflicts []*syncpkg.ConflictItem) {
	if len(conflicts) == 0 {
		fmt.Fprintln(out, "No pending conflicts.")
		return
	}

	table := newTable(out, "ID", "Name", "Local modified", "Remote modified", "Detected")
	for _, c := range conflicts {
		table.Append([]string{
			c.ID,
			truncate(c.Name, 40),
			orDash(c.LocalModified),
			orDash(c.RemoteModified),
			c.DetectedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	fmt.Fprintf(out, "\nResolve with: lifesync resolve <id>=use_local|use_remote|merge\n")
}

func printHistory(out io.Writer, history []*database.SyncHistory, lastSync time.Time, status string) {
	if lastSync.IsZero() {
		fmt.Fprintln(out, "Last sync: never")
	} else {
		fmt.Fprintf(out, "Last sync: %s (%s)\n", lastSync.Local().Format("2006-01-02 15:04:05"), status)
	}
	if len(history) == 0 {
		fmt.Fprintln(out, "No sync history.")
		return
	}

	fmt.Fprintln(out)
	table := newTable(out, "Started", "Provider", "Status", "Up", "Down", "Skipped", "Failed", "Conflicts", "Size", "Duration")
	for _, h := range history {
		table.Append([]string{
			h.StartedAt.Local().Format("2006-01-02 15:04:05"),
			h.Provider,
			h.Status,
			fmt.Sprint(h.Uploaded),
			fmt.Sprint(h.Downloaded),
			fmt.Sprint(h.Skipped),
			fmt.Sprint(h.Failed),
			fmt.Sprint(h.Conflicts),
			formatSize(h.BytesTransferred),
			h.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

// printSettings renders a flattened settings map, secrets masked
func printSettings(out io.Writer, settings map[string]any) {
	flat := make(map[string]string)
	flatten("", settings, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := newTable(out, "Key", "Value")
	for _, k := range keys {
		v := flat[k]
		if strings.Contains(k, "password") && v != "" {
			v = "********"
		}
		table.Append([]string{k, v})
	}
	table.Render()
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case map[string]string:
			for sk, sv := range val {
				out[key+"."+sk] = sv
			}
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ", ")
		case []string:
			out[key] = strings.Join(val, ", ")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
