package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var setOpts struct {
	ttl   int
	stdin bool
}

var setCmd = &cobra.Command{
	Use:   "set <layer> [text]",
	Short: "Write text to a layer",
	Long: `Write text to the upper, middle or lower layer (or 1, 2, 3).

Use "\n" in the text for a line break. With --ttl the layer clears itself
after that many TTL units; without it the layer keeps its current TTL.

Examples:
  pidisplay set lower "$(date +%H:%M)"
  pidisplay set upper 'Doorbell\nFront door' --ttl 10
  uptime | pidisplay set middle --stdin`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().IntVar(&setOpts.ttl, "ttl", 0,
		"TTL in daemon TTL units (-1 = never expire)")
	setCmd.Flags().BoolVar(&setOpts.stdin, "stdin", false,
		"Read the text from stdin")
}

func runSet(cmd *cobra.Command, args []string) error {
	var text string
	switch {
	case setOpts.stdin:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	case len(args) == 2:
		text = unescape(args[1])
	}

	var ttl *int
	if cmd.Flags().Changed("ttl") {
		ttl = &setOpts.ttl
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.Timeout.Duration())
	defer cancel()

	if err := newClient().SetLayer(ctx, args[0], text, ttl); err != nil {
		return err
	}
	logger.Debug("layer updated", "layer", args[0], "ttl", setOpts.ttl)
	return nil
}

// unescape turns the two-character sequence \n into a line break.
func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
