package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tasknlp/internal/audit"
	"tasknlp/internal/config"
	"tasknlp/internal/stats"
)

type statsOptions struct {
	watch  bool
	recent bool
	export string
}

func newStatsCmd() *cobra.Command {
	var opts statsOptions
	c := &cobra.Command{
		Use:   "stats",
		Short: "Show request statistics from the running service or the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			get := func() (stats.Stats, error) { return getStats(cfg) }
			out := cmd.OutOrStdout()
			if !opts.watch {
				return renderStatsTo(out, get, opts)
			}
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			return watchStatsLoop(out, get, opts, ticker.C, sigCh)
		},
	}
	c.Flags().BoolVar(&opts.watch, "watch", false, "refresh every 2 seconds")
	c.Flags().BoolVar(&opts.recent, "recent", false, "show recent requests")
	c.Flags().StringVar(&opts.export, "export", "", "export format: json|csv")
	return c
}

func watchStatsLoop(w io.Writer, get func() (stats.Stats, error), opts statsOptions, ticks <-chan time.Time, stop <-chan os.Signal) error {
	for {
		var buf strings.Builder
		if err := renderStatsTo(&buf, get, opts); err != nil {
			return err
		}
		if opts.export == "" && w == io.Writer(os.Stdout) && isTerminal() {
			fmt.Fprint(w, "\033[H\033[2J\033[3J")
		}
		fmt.Fprint(w, buf.String())
		select {
		case <-ticks:
		case <-stop:
			return nil
		}
	}
}

func renderStatsTo(w io.Writer, get func() (stats.Stats, error), opts statsOptions) error {
	st, err := get()
	if err != nil {
		return err
	}
	switch strings.ToLower(opts.export) {
	case "":
		if opts.recent {
			printRecent(w, st)
			return nil
		}
		printSummary(w, st)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "csv":
		if !opts.recent {
			return fmt.Errorf("csv export requires --recent")
		}
		return exportRecentCSV(w, st.Recent)
	default:
		return fmt.Errorf("unsupported export format %q", opts.export)
	}
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// getStats asks the running service first and falls back to reading the
// audit log directly.
func getStats(cfg *config.Config) (stats.Stats, error) {
	if st, err := fetchServiceStats(statsURL(cfg.Server)); err == nil {
		return st, nil
	}
	entries, err := audit.ParseFile(cfg.Log.AuditFile)
	if err != nil {
		return stats.Stats{}, err
	}
	return stats.CollectFromEntries(entries, stats.Options{Now: time.Now().UTC(), Status: "stopped", Port: cfg.Server.Port}), nil
}

func statsURL(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/api/stats", host, s.Port)
}

func fetchServiceStats(url string) (stats.Stats, error) {
	client := &http.Client{Timeout: 700 * time.Millisecond}
	resp, err := client.Get(url)
	if err != nil {
		return stats.Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats.Stats{}, fmt.Errorf("stats API status %d", resp.StatusCode)
	}
	var st stats.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return stats.Stats{}, err
	}
	return st, nil
}

func printSummary(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, "tasknlp Statistics")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Uptime:      %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Port:        %d\n", st.Port)
	fmt.Fprintf(w, "Requests:    %d, %d failed (%.1f/min last 5m)\n", st.Requests.Total, st.Requests.Failed, st.Requests.PerMinute)
	fmt.Fprintf(w, "Latency avg: classify %.1fms | extract %.1fms | total %.1fms\n", st.Latency.ClassifyMs, st.Latency.ExtractMs, st.Latency.TotalMs)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Operations")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, op := range sortedKeys(st.Requests.ByOperation) {
		fmt.Fprintf(w, "%-20s %d\n", op, st.Requests.ByOperation[op])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Entities")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, t := range sortedKeys(st.Entities.ByType) {
		v := st.Entities.ByType[t]
		fmt.Fprintf(w, "%-12s %5d %s\n", t+":", v, progress(v, st.Entities.Total))
	}
	fmt.Fprintf(w, "Total:       %d\n\n", st.Entities.Total)

	fmt.Fprintln(w, "Types")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, t := range st.Types {
		fmt.Fprintf(w, "%-16s %5d  avg confidence %.2f\n", t.Type, t.Requests, t.AvgConfidence)
	}
}

func printRecent(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, "Recent Requests")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "%-10s %-18s %-6s %-10s %-30s %-8s\n", "TIME", "OPERATION", "STATUS", "TYPE", "ENTITIES", "LATENCY")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range st.Recent {
		tm := r.Timestamp
		if ts, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
			tm = ts.Format("15:04:05")
		}
		typ := r.Type
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(w, "%-10s %-18s %-6d %-10s %-30s %-8.1fms\n", tm, r.Operation, r.StatusCode, typ, entityLabel(r.Entities), r.TotalMs)
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "Showing %d of %d total requests\n", len(st.Recent), st.Requests.Total)
}

func progress(v, total int) string {
	if total <= 0 {
		return ""
	}
	p := int(float64(v) / float64(total) * 20)
	if p > 20 {
		p = 20
	}
	return strings.Repeat("█", p) + strings.Repeat("░", 20-p)
}

func entityLabel(entities map[string]int) string {
	if len(entities) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(entities))
	for _, t := range sortedKeys(entities) {
		parts = append(parts, fmt.Sprintf("%d %s", entities[t], t))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exportRecentCSV(w io.Writer, rows []stats.RecentRequest) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"timestamp", "id", "operation", "status", "type", "entity_types", "entity_count", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range rows {
		count := 0
		for _, n := range r.Entities {
			count += n
		}
		if err := cw.Write([]string{
			r.Timestamp,
			r.ID,
			r.Operation,
			fmt.Sprintf("%d", r.StatusCode),
			r.Type,
			strings.Join(sortedKeys(r.Entities), "|"),
			fmt.Sprintf("%d", count),
			fmt.Sprintf("%.3f", r.TotalMs),
		}); err != nil {
			return err
		}
	}
	return cw.Error()
}
