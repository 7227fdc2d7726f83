package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/diagram"
)

var (
	diagramScenario string
	diagramFormat   string
	diagramOut      string
)

var diagramCmd = &cobra.Command{
	Use:   "diagram [plan-file]",
	Short: "Draw a plan with its validation outcome",
	Long: `Validate a plan and draw it as ASCII boxes, a Mermaid flowchart, or a PNG.
Steps are marked ok, failed, or skipped, and annotated with the occupancy
changes they cause. Multi-agent plans are grouped into one lane per agent.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagram,
}

func init() {
	diagramCmd.Flags().StringVar(&diagramScenario, "scenario", "", "scenario name (s1..s4) or scenario file (default from config)")
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "output format: ascii, mermaid, or png")
	diagramCmd.Flags().StringVarP(&diagramOut, "out", "o", "", "output file (required for png)")
}

func runDiagram(cmd *cobra.Command, args []string) error {
	if diagramFormat == "png" && diagramOut == "" {
		return fmt.Errorf("--out is required for png output")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sc, err := a.catalog.Resolve(firstNonEmpty(diagramScenario, a.cfg.Scenario))
	if err != nil {
		return err
	}
	doc, err := a.plans.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	verdict := a.checkDocument(ctx, sc, doc, sc.Goal, true)

	model := diagram.Build(doc.Plan, diagram.Options{
		Title:    sc.World.Name,
		Registry: a.registry,
		Verdict:  verdict,
		Initial:  sc.World.Occupancy,
	})

	var data []byte
	switch diagramFormat {
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "png":
		if data, err = diagram.RenderImage(ctx, model); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q (want ascii, mermaid, or png)", diagramFormat)
	}

	if diagramOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(diagramOut, data, 0o644); err != nil {
		return fmt.Errorf("write diagram: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "diagram written to %s (%s)\n", diagramOut, verdict.Phase)
	return nil
}
