// Command wikiq-eval replays a golden query set through the retrieval
// pipeline and reports hit-rate/MRR, for regression-checking retrieval
// quality across changes to ranking, expansion, or embedding models.
//
// Usage:
//
//	wikiq-eval run --config wikiq.yaml --golden-set golden.json
package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/veyron-labs/wikiq/internal/config"
	"github.com/veyron-labs/wikiq/internal/engine"
	"github.com/veyron-labs/wikiq/internal/evaluation"
)

// CLI defines the command-line interface.
type CLI struct {
	Run RunCmd `cmd:"" help:"Run the golden set against a configured pipeline."`

	Config string `short:"c" help:"Path to config file (YAML)." type:"path"`
}

// RunCmd builds the pipeline from config and scores a golden set.
type RunCmd struct {
	GoldenSet string `help:"Path to the golden query set JSON file." required:""`
	K         int    `help:"Number of top hits considered per case." default:"10"`
	Output    string `help:"Optional path to save the report as JSON."`
}

func (c *RunCmd) Run(cli *CLI) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env files: %w", err)
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cases, err := evaluation.LoadGoldenSet(c.GoldenSet)
	if err != nil {
		return fmt.Errorf("loading golden set: %w", err)
	}

	ctx := context.Background()
	eng, err := engine.Build(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	report, err := evaluation.Run(ctx, eng.Pipeline, cases, c.K)
	if err != nil {
		return fmt.Errorf("running evaluation: %w", err)
	}

	fmt.Print(report.FormatSummary())

	if c.Output != "" {
		if err := report.SaveJSON(c.Output); err != nil {
			return fmt.Errorf("saving report: %w", err)
		}
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wikiq-eval"),
		kong.Description("Offline retrieval-quality regression harness."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
