package main

import (
	"context"

	"github.com/spf13/cobra"
)

var clearOpts struct {
	all bool
}

var clearCmd = &cobra.Command{
	Use:   "clear [layer]",
	Short: "Empty a layer and drop its TTL",
	Long: `Empty a layer so lower layers show through.

Examples:
  pidisplay clear upper
  pidisplay clear --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if clearOpts.all {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolVar(&clearOpts.all, "all", false,
		"Clear every layer")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.Timeout.Duration())
	defer cancel()

	c := newClient()
	layers := args
	if clearOpts.all {
		layers = []string{"upper", "middle", "lower"}
	}
	for _, layer := range layers {
		if err := c.ClearLayer(ctx, layer); err != nil {
			return err
		}
	}
	return nil
}
