package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pidisplay/internal/client"
)

// LayerStatus is one layer in status output.
type LayerStatus struct {
	Name    string `json:"name" yaml:"name"`
	Text    string `json:"text" yaml:"text"`
	TTL     int    `json:"ttl" yaml:"ttl"`
	Expires string `json:"expires" yaml:"expires"`
}

// Status is the structured form of status output.
type Status struct {
	Thing  string        `json:"thing" yaml:"thing"`
	Text   string        `json:"text" yaml:"text"`
	Layers []LayerStatus `json:"layers" yaml:"layers"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the rendered text and every layer",
	Long: `Show what the display is rendering and the state of each layer,
with the remaining time before each layer clears itself.

Examples:
  pidisplay status
  pidisplay status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.Timeout.Duration())
	defer cancel()

	c := newClient()
	td, err := c.Thing(ctx)
	if err != nil {
		return err
	}
	values, err := c.GetAll(ctx)
	if err != nil {
		return err
	}

	status := buildStatus(td.Title, values, client.TTLUnit(td))
	if cfg.Output.Format != "plain" {
		return writeValue(os.Stdout, cfg.Output.Format, status)
	}
	return writeStatus(os.Stdout, status)
}

func buildStatus(title string, values map[string]any, unit time.Duration) Status {
	status := Status{Thing: title, Text: client.Text(values)}
	for _, l := range client.Layers(values) {
		status.Layers = append(status.Layers, LayerStatus{
			Name:    l.Name,
			Text:    l.Text,
			TTL:     l.TTL,
			Expires: client.FormatTTL(l.TTL, unit),
		})
	}
	return status
}

func writeStatus(w io.Writer, status Status) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", status.Thing)
	for _, line := range strings.Split(status.Text, "\n") {
		fmt.Fprintf(&b, "  | %s\n", line)
	}
	b.WriteString("\n")
	for _, l := range status.Layers {
		text := client.FirstLine(l.Text)
		if text == "" {
			text = "(empty)"
		}
		fmt.Fprintf(&b, "%-7s %-24s %s\n", l.Name, text, l.Expires)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
