package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentcore/internal/tools"
)

func toolsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := tools.NewRegistry(tools.Builtins(".")...)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(registry.ProviderDefs(), "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, name := range registry.List() {
				t, _ := registry.Get(name)
				fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output tool schemas as JSON")
	return cmd
}
