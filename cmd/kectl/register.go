package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the knowledge base and its interactions once, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		decls, err := parseDeclarations(flagDeclare)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), slog.Default(), decls)
		if err != nil {
			return err
		}
		defer a.backends.Close()

		if err := a.runtime.Register(cmd.Context()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tKNOWLEDGE INTERACTION ID")
		for _, ki := range a.registry.Interactions() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ki.Name, ki.Kind.WireType(), ki.ID())
		}
		return w.Flush()
	},
}

func init() {
	registerCmd.Flags().StringArrayVarP(&flagDeclare, "declare", "d", nil, "declare an interaction as role:pattern (repeatable)")
}
