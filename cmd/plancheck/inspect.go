package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/pkg/schema"
)

// --- scenarios ---

var scenariosJSON bool

var scenariosCmd = &cobra.Command{
	Use:   "scenarios [name-or-file]",
	Short: "List built-in scenarios, or print one scenario",
	Long: `Without arguments, list the built-in scenarios. With a built-in name,
print its scenario document. With a file path, load and check the file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScenarios,
}

func init() {
	scenariosCmd.Flags().BoolVar(&scenariosJSON, "json", false, "print the decoded scenario as JSON")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tAGENTS\tSLOTS\tSHARED\tDESCRIPTION")
		for _, name := range a.catalog.Names() {
			sc, err := a.catalog.Get(name)
			if err != nil {
				return err
			}
			w := sc.World
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", name, strings.Join(w.AgentIDs(), ","),
				len(w.Slots), strings.Join(w.SharedSlots, ","), w.Description)
		}
		return tw.Flush()
	}

	sc, err := a.catalog.Resolve(args[0])
	if err != nil {
		return err
	}
	if scenariosJSON {
		return writeJSON(out, sc)
	}
	if src, ok := a.catalog.Source(args[0]); ok {
		_, err := out.Write(src)
		return err
	}
	fmt.Fprintf(out, "✓ %s is valid (%d agent(s), %d slot(s), %d object(s))\n",
		sc.World.Name, len(sc.World.AgentIDs()), len(sc.World.Slots), len(sc.World.Objects))
	return nil
}

// --- actions ---

var actionsJSON bool

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the action vocabulary",
	Args:  cobra.NoArgs,
	RunE:  runActions,
}

func init() {
	actionsCmd.Flags().BoolVar(&actionsJSON, "json", false, "print as JSON")
}

func runActions(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	infos := a.registry.List()
	out := cmd.OutOrStdout()
	if actionsJSON {
		return writeJSON(out, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(out, "%s (%s)", info.Name, info.Kind)
		if len(info.Aliases) > 0 {
			fmt.Fprintf(out, "  aliases: %s", strings.Join(info.Aliases, ", "))
		}
		fmt.Fprintln(out)
		if info.Description != "" {
			fmt.Fprintf(out, "  %s\n", info.Description)
		}
		fmt.Fprintf(out, "  fields: %s\n", strings.Join(info.Required, ", "))
		for _, p := range info.Preconditions {
			fmt.Fprintf(out, "  pre:    %s\n", p)
		}
		for _, e := range info.Effects {
			fmt.Fprintf(out, "  effect: %s\n", e)
		}
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:       "schema [scenario|plan]",
	Short:     "Export the JSON Schema of scenario or plan documents",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"scenario", "plan"},
	RunE:      runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	switch args[0] {
	case "scenario", "world":
		data, err = schema.GenerateScenarioJSONSchema()
	case "plan":
		data, err = schema.GeneratePlanJSONSchema()
	default:
		return fmt.Errorf("unknown schema %q (want scenario or plan)", args[0])
	}
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
