package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine statistics from a running service",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/stats", cfg.Server.Port))
	if err != nil {
		slog.Error("Failed to reach stats endpoint", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var stats engine.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		slog.Error("Failed to decode stats", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "METRIC\tVALUE")
	_, _ = fmt.Fprintf(w, "errors handled\t%d\n", stats.Handled)
	_, _ = fmt.Fprintf(w, "retries exhausted\t%d\n", stats.RetriesExhausted)
	_, _ = fmt.Fprintf(w, "retries aborted\t%d\n", stats.RetriesAborted)
	_, _ = fmt.Fprintf(w, "fallback hits\t%d\n", stats.FallbackHits)
	_, _ = fmt.Fprintf(w, "fallback misses\t%d\n", stats.FallbackMisses)
	_, _ = fmt.Fprintf(w, "offline mode\t%v\n", stats.OfflineMode)
	_, _ = fmt.Fprintf(w, "rules\t%d\n", stats.Rules)
	_, _ = fmt.Fprintf(w, "log entries\t%d\n", stats.Logger.Total)
	_, _ = fmt.Fprintf(w, "deduplicated\t%d\n", stats.Logger.Deduplicated)
	_ = w.Flush()

	if len(stats.ByType) > 0 {
		fmt.Println()
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(tw, "ERROR TYPE\tCOUNT")
		for typ, count := range stats.ByType {
			_, _ = fmt.Fprintf(tw, "%s\t%d\n", typ, count)
		}
		_ = tw.Flush()
	}
}
