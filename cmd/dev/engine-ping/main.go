// engine-ping probes the external engines the agent depends on: the
// Flowise prediction API and the Ollama embedding server. Useful when
// wiring up a new install.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/garnizeh/talentflow/internal/config"
	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/ollama"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config YAML file")
		predict    = flag.Bool("predict", false, "Also run a test prediction against the analysis flow")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine, err := flowise.NewDefaultClient(cfg.Flowise)
	if err != nil {
		log.Fatalf("flowise client: %v", err)
	}
	if err := engine.Health(ctx); err != nil {
		fmt.Printf("flowise   %s: UNREACHABLE (%v)\n", cfg.Flowise.BaseURL, err)
	} else {
		fmt.Printf("flowise   %s: ok\n", cfg.Flowise.BaseURL)
	}

	embedder, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		log.Fatalf("ollama client: %v", err)
	}
	if err := embedder.Health(ctx); err != nil {
		fmt.Printf("ollama    %s: UNREACHABLE (%v)\n", cfg.Ollama.BaseURL, err)
	} else {
		fmt.Printf("ollama    %s: ok\n", cfg.Ollama.BaseURL)
		if vecs, err := embedder.Embed(ctx, []string{"probe"}); err != nil {
			fmt.Printf("embedding %s: FAILED (%v)\n", cfg.Ollama.Model, err)
		} else {
			fmt.Printf("embedding %s: ok (%d dims)\n", cfg.Ollama.Model, len(vecs[0]))
		}
	}

	if *predict {
		if cfg.Flowise.AnalysisFlowID == "" {
			log.Fatal("predict requested but flowise.analysis_flow_id is not configured")
		}
		res, err := engine.Predict(ctx, cfg.Flowise.AnalysisFlowID, map[string]string{
			"title":       "Senior Go Developer",
			"description": "Build and operate Go services.",
		})
		if err != nil {
			log.Fatalf("prediction: %v", err)
		}
		fmt.Printf("prediction (%s):\n%s\n", cfg.Flowise.AnalysisFlowID, res.Text)
	}
}
