package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/porticodev/portico/internal/app"
	"github.com/porticodev/portico/internal/config"
	"github.com/porticodev/portico/theme"
)

var statusFlags struct {
	jsonOutput bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running gateway's endpoint health",
	Long: `Query a running gateway's status endpoint and print the endpoint
health and latency snapshot, the active selection strategy, and the
registered transformers.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFlags.jsonOutput, "json", false, "print raw JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://%s/status", cfg.Server.GetAddress())
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s: %w", cfg.Server.GetAddress(), err)
	}
	defer resp.Body.Close()

	var status app.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	if statusFlags.jsonOutput {
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	printStatus(&status)
	return nil
}

func printStatus(status *app.StatusResponse) {
	t := theme.Default()

	pterm.Printf("Portico %s\n", status.Version)
	pterm.Printf("Strategy:     %s\n", t.Highlight.Sprint(status.Strategy))
	pterm.Printf("Transformers: %v\n", status.Transformers)
	pterm.Printf("Endpoints:    %d healthy / %d total\n\n", status.Pool.Healthy, status.Pool.Total)

	rows := pterm.TableData{{"Endpoint", "Health", "Avg (ms)", "Samples", "Transformer"}}
	for _, e := range status.Pool.Endpoints {
		health := t.HealthHealthy.Sprint("healthy")
		if !e.Healthy || e.BannedUntil != nil {
			if e.BanReason != "" {
				health = t.HealthBanned.Sprintf("banned (%s)", e.BanReason)
			} else {
				health = t.HealthBanned.Sprint("banned")
			}
		}
		avg := "-"
		if e.Samples > 0 {
			avg = fmt.Sprintf("%.1f", e.AvgMs)
		}
		rows = append(rows, []string{e.Name, health, avg, fmt.Sprintf("%d", e.Samples), e.Transformer})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Println(rows)
	}
}
