package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pidisplay/internal/lcd"
	"github.com/jmylchreest/pidisplay/internal/tui"
)

var watchOpts struct {
	lines   int
	columns int
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Launch the live display viewer",
	Long: `Launch an interactive viewer that mirrors the LCD as it changes.

Key bindings:
  1/2/3       Select upper, middle or lower layer
  e, enter    Edit the selected layer
  x, d        Clear the selected layer
  l           Toggle the layer list
  ?           Show help
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntVar(&watchOpts.lines, "lines", lcd.DefaultGeometry.Lines,
		"Display lines to draw")
	watchCmd.Flags().IntVar(&watchOpts.columns, "columns", lcd.DefaultGeometry.Columns,
		"Display columns to draw")
}

func runWatch(cmd *cobra.Command, args []string) error {
	return tui.Run(cmd.Context(), tui.Options{
		Client:   newClient(),
		Config:   cfg,
		Geometry: lcd.Geometry{Lines: watchOpts.lines, Columns: watchOpts.columns},
	})
}
