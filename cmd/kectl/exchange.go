package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/api"
)

var flagBindings string

var askCmd = &cobra.Command{
	Use:   "ask <interaction>",
	Short: "Send bindings through an ASK interaction of a running client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := exchangeRequest(args[0], flagBindings)
		if err != nil {
			return err
		}
		resp, err := api.NewClient(flagAdmin).Ask(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var postCmd = &cobra.Command{
	Use:   "post <interaction>",
	Short: "Send bindings through a POST interaction of a running client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := exchangeRequest(args[0], flagBindings)
		if err != nil {
			return err
		}
		resp, err := api.NewClient(flagAdmin).Post(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List the interactions of a running client",
	RunE: func(cmd *cobra.Command, args []string) error {
		kis, err := api.NewClient(flagAdmin).Interactions(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tREGISTERED\tVARS")
		for _, ki := range kis {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", ki.Name, ki.Type, ki.Registered, strings.Join(ki.Vars, ","))
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, postCmd} {
		c.Flags().StringVarP(&flagBindings, "bindings", "b", "", `JSON bindings, an object or an array of objects, e.g. '{"meas":"<http://example.org/m1>"}'`)
	}
}

// exchangeRequest accepts a single binding object or an array of them.
func exchangeRequest(name, raw string) (api.ExchangeRequest, error) {
	req := api.ExchangeRequest{Interaction: name}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return req, nil
	}
	if strings.HasPrefix(raw, "{") {
		var one map[string]string
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return req, fmt.Errorf("invalid bindings: %w", err)
		}
		req.Bindings = []map[string]string{one}
		return req, nil
	}
	if err := json.Unmarshal([]byte(raw), &req.Bindings); err != nil {
		return req, fmt.Errorf("invalid bindings: %w", err)
	}
	return req, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
