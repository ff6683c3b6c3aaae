package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/config"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/internal/presentation/graph"
	"github.com/aretw0/rewind/internal/script"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Run a scenario script against an in-memory graph",
	Long: `Runs every step of a YAML or JSON scenario against a fresh in-memory graph,
then prints the undo history and the resulting components.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		return runReplay(cmd.Context(), cfg, args[0], mermaid, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("mermaid", false, "Print the resulting graph as a Mermaid flowchart instead of JSON")
}

func runReplay(ctx context.Context, cfg config.Config, path string, mermaid bool, out io.Writer) error {
	logger := logging.New(cfg.Level())

	s, err := script.Load(path)
	if err != nil {
		return err
	}

	g := memory.NewGraph(memory.WithContainer(cfg.Document), memory.WithLogger(logger))
	editor, err := rewind.New(g,
		rewind.WithLogger(logger),
		rewind.WithHistoryDepth(cfg.HistoryDepth),
		rewind.WithLifecycleHooks(observability.LogHooks(logger)),
	)
	if err != nil {
		return err
	}
	defer editor.Close()

	fmt.Fprintf(out, "Scenario %s\n", s.Name)
	results, runErr := script.NewRunner(g, editor, script.WithLogger(logger)).Run(ctx, s)
	for _, res := range results {
		status := "ok"
		switch {
		case res.Err != nil:
			status = "error: " + res.Err.Error()
		case !res.Applied:
			status = "nothing to do"
		}
		fmt.Fprintf(out, "%3d. %-24s %s\n", res.Index, res.Step, status)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(out, "History:")
	for _, e := range editor.History() {
		mark := " "
		if e.Undone {
			mark = "~"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, e.Name)
	}

	if mermaid {
		fmt.Fprint(out, graph.GenerateMermaid(g, graph.SelectionOverlay(g)))
		return nil
	}
	data, err := json.MarshalIndent(g.Dump(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	fmt.Fprintf(out, "Components:\n%s\n", data)
	return nil
}
