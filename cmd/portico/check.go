package main

import (
	"fmt"
	"math"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/porticodev/portico/internal/adapter/probe"
	"github.com/porticodev/portico/internal/config"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/theme"
)

var checkFlags struct {
	strategy string
	timeout  time.Duration
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every configured provider once",
	Long: `Probe every configured provider directly, without starting the
gateway. Useful for validating credentials and comparing latency before
picking a selection strategy.

Examples:
  # Probe with the configured strategy
  portico check

  # TCP connect check only, no credentials exercised
  portico check --strategy ping`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.strategy, "strategy", "", "probe strategy (response_time, head, ping)")
	checkCmd.Flags().DurationVar(&checkFlags.timeout, "timeout", 10*time.Second, "per-probe timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pool, err := domain.BuildPool(cfg.Descriptors(), domain.BuildOptions{
		LoadBalance: cfg.Gateway.EnableLoadBalance,
		Transform:   cfg.Gateway.EnableTransform,
	})
	if err != nil {
		return fmt.Errorf("no providers to check: %w", err)
	}

	strategy := cfg.Balance.SpeedFirst.SpeedTestStrategy
	if checkFlags.strategy != "" {
		strategy = checkFlags.strategy
	}

	prober, err := probe.NewProber(strategy, probe.Options{
		Timeout:  checkFlags.timeout,
		ProxyURL: cfg.Gateway.ProxyURL,
	})
	if err != nil {
		return err
	}

	endpoints := pool.Endpoints()
	pterm.Printf("Probing %d providers with %s...\n\n", len(endpoints), prober.Name())

	results := probe.RunAll(cmd.Context(), prober, endpoints)

	t := theme.Default()
	rows := pterm.TableData{{"Provider", "Result", "Latency (ms)"}}
	for _, e := range endpoints {
		r := results[e.Name]
		outcome := t.HealthHealthy.Sprint("ok")
		latency := fmt.Sprintf("%.1f", r.LatencyMs)
		if !r.Success {
			outcome = t.HealthBanned.Sprintf("failed: %s", r.Error)
			if math.IsInf(r.LatencyMs, 1) {
				latency = "-"
			}
		}
		rows = append(rows, []string{e.Name, outcome, latency})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Println(rows)
	}

	if fastest, ok := probe.Fastest(results); ok {
		pterm.Printf("\nFastest: %s\n", t.Highlight.Sprint(fastest))
	} else {
		pterm.Println("\nNo provider answered successfully")
	}
	return nil
}
