package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [property]",
	Short: "Read display properties",
	Long: `Read one property, or every property when none is named.

Properties:
  text                    Rendered text (read-only)
  upper_layer_text        Text of the upper layer
  upper_layer_text_ttl    Remaining TTL of the upper layer (-1 = none)
  middle_layer_text, middle_layer_text_ttl
  lower_layer_text, lower_layer_text_ttl

Examples:
  pidisplay get
  pidisplay get text
  pidisplay get -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.Timeout.Duration())
	defer cancel()

	c := newClient()
	if len(args) == 1 {
		v, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return writeValue(os.Stdout, cfg.Output.Format, v)
	}

	values, err := c.GetAll(ctx)
	if err != nil {
		return err
	}
	return writeValues(os.Stdout, cfg.Output.Format, values)
}
