package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/pidisplay/internal/compositor"
)

// CurrentStateVersion is the current version of the state schema.
const CurrentStateVersion = 1

// LayerRecord is the persisted content of one layer.
type LayerRecord struct {
	Layer string `json:"layer"`
	Text  string `json:"text"`
	TTL   int    `json:"ttl"` // remaining TTL units, -1 = none
}

// State is the layer content saved on shutdown and restored at startup.
// This is persisted to ~/.local/share/pidisplay/state.json
type State struct {
	SchemaVersion int           `json:"schema_version"`
	SavedAt       int64         `json:"saved_at,omitempty"` // Unix timestamp
	Layers        []LayerRecord `json:"layers"`
}

// CaptureState records every non-empty layer of d. Remaining TTLs are
// stored so countdowns resume where they stopped.
func CaptureState(d *compositor.Display) *State {
	snap := d.Snapshot()
	state := &State{
		SchemaVersion: CurrentStateVersion,
		SavedAt:       time.Now().Unix(),
	}
	for _, l := range snap.Layers {
		if l.Text == "" {
			continue
		}
		state.Layers = append(state.Layers, LayerRecord{Layer: l.Name, Text: l.Text, TTL: l.TTL})
	}
	return state
}

// LoadState reads the state file. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{SchemaVersion: CurrentStateVersion}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentStateVersion
	}
	if state.SchemaVersion > CurrentStateVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", state.SchemaVersion, CurrentStateVersion)
	}
	return &state, nil
}

// SaveState writes state to path atomically.
func SaveState(path string, state *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentStateVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Restore applies the saved layers to d and returns how many were restored.
// Records for unknown layers, or whose countdown had already run out, are
// skipped. A failed display write does not stop the restore since the layer
// content is kept either way.
func (s *State) Restore(d *compositor.Display) (int, error) {
	var errs []error
	restored := 0
	for _, rec := range s.Layers {
		if rec.Text == "" || rec.TTL == 0 {
			continue
		}
		layer, err := d.PanelByName(rec.Layer)
		if err != nil {
			errs = append(errs, fmt.Errorf("layer %q: %w", rec.Layer, err))
			continue
		}
		if err := layer.UpdateTTL(rec.TTL); err != nil {
			errs = append(errs, fmt.Errorf("layer %q: %w", rec.Layer, err))
			continue
		}
		if err := layer.UpdateText(rec.Text); err != nil {
			var writeErr *compositor.DisplayWriteError
			if !errors.As(err, &writeErr) {
				errs = append(errs, fmt.Errorf("layer %q: %w", rec.Layer, err))
				continue
			}
		}
		restored++
	}
	return restored, errors.Join(errs...)
}
