package lcd

import (
	"sync"
)

// Memory is a display without hardware. It keeps the visible grid in memory
// and can be told to fail, which makes it useful for dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	geometry Geometry
	text     string
	clears   int
	writes   int
	err      error
}

// NewMemory creates an empty in-memory display.
func NewMemory(g Geometry) *Memory {
	return &Memory{geometry: g}
}

// Clear blanks the grid.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &HardwareError{Op: "clear", Cause: m.err}
	}
	m.clears++
	m.text = ""
	return nil
}

// Write places text on the grid.
func (m *Memory) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &HardwareError{Op: "write", Cause: m.err}
	}
	m.writes++
	m.text = text
	return nil
}

// Fail makes every following call return err. A nil err restores normal
// operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Lines returns the grid as it currently appears, padded to full width.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Render(m.text, m.geometry)
}

// Geometry returns the grid size.
func (m *Memory) Geometry() Geometry {
	return m.geometry
}

// Stats returns how many clears and writes succeeded.
func (m *Memory) Stats() (clears, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears, m.writes
}
