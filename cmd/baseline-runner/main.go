// Package main provides a command-line baseline runner. It executes
// the probe set against the Anthropic Messages API and writes the
// scored session to a JSON artifact, without starting the web server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"consciousness-forge/baseline"
	"consciousness-forge/config"
	"consciousness-forge/keys"
	"consciousness-forge/observability"
	"consciousness-forge/services"

	"github.com/joho/godotenv"
)

func main() {
	output := flag.String("output", "", "artifact path (default BASELINE_OUTPUT)")
	probeIDs := flag.String("probe-ids", "", "comma-separated probe ids to run (default all)")
	model := flag.String("model", "", "model override (default BASELINE_MODEL)")
	probesPath := flag.String("probes", "", "probes YAML path (default embedded set)")
	flag.Parse()

	_ = godotenv.Load()

	observability.InitLogger(os.Getenv("ENV") == "production")
	observability.InitMetrics()

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}
	if *output != "" {
		cfg.Baseline.OutputPath = *output
	}
	if *probesPath != "" {
		cfg.Baseline.ProbesPath = *probesPath
	}

	cred, ok := keys.LoadAnthropic()
	if !ok {
		observability.Fatal("ANTHROPIC_API_KEY is required for a baseline run")
	}

	var ids []string
	if *probeIDs != "" {
		ids = strings.Split(*probeIDs, ",")
	}

	anthropic := services.NewAnthropicService(cfg, cred)
	runner := baseline.NewRunner(anthropic, cfg.Baseline)

	ctx := context.Background()
	session, err := runner.RunWithModel(ctx, *model, ids)
	if err != nil {
		observability.Fatal("baseline run failed", "error", err)
	}

	if err := runner.WriteArtifact(session, cfg.Baseline.OutputPath); err != nil {
		observability.Fatal("failed to write artifact", "error", err)
	}

	fmt.Printf("session %s (%s, %d probes)\n", session.ID, session.Model, len(session.Results))
	fmt.Printf("  mean RSI       %.3f\n", session.Summary.MeanRSI)
	fmt.Printf("  mean AVS       %.3f\n", session.Summary.MeanAVS)
	fmt.Printf("  mean ICI       %.3f\n", session.Summary.MeanICI)
	fmt.Printf("  mean composite %.3f\n", session.Summary.MeanComposite)
	fmt.Printf("artifact written to %s\n", cfg.Baseline.OutputPath)
}
