package properties

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/pidisplay/internal/compositor"
)

// Sentinel errors for property access.
var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrReadOnly        = errors.New("property is read-only")
	ErrInvalidValue    = errors.New("invalid property value")
)

// Type is the JSON type of a property value.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
)

// TextProperty is the read-only rendered text.
const TextProperty = "text"

// Metadata describes a property to clients.
type Metadata struct {
	Title       string `json:"title"`
	Type        Type   `json:"type"`
	Description string `json:"description"`
	ReadOnly    bool   `json:"readOnly"`
	// Unit is the duration of one step for TTL properties, e.g. "1s".
	Unit string `json:"unit,omitempty"`
}

// Descriptor names a property and its metadata.
type Descriptor struct {
	Name string
	Metadata
}

type property struct {
	Descriptor
	rank compositor.Rank
	ttl  bool
}

// LayerTextProperty returns the property name for a layer's text.
func LayerTextProperty(r compositor.Rank) string {
	return r.String() + "_layer_text"
}

// LayerTTLProperty returns the property name for a layer's TTL.
func LayerTTLProperty(r compositor.Rank) string {
	return r.String() + "_layer_text_ttl"
}

// Registry maps property names onto a Display.
type Registry struct {
	display *compositor.Display
	props   []*property
	byName  map[string]*property
}

// NewRegistry builds the property set for d.
func NewRegistry(d *compositor.Display) *Registry {
	r := &Registry{
		display: d,
		byName:  make(map[string]*property),
	}

	r.add(&property{Descriptor: Descriptor{
		Name: TextProperty,
		Metadata: Metadata{
			Title:       "text",
			Type:        TypeString,
			Description: "The displayed text",
			ReadOnly:    true,
		},
	}})

	for _, rank := range compositor.Ranks() {
		name := rank.String()
		r.add(&property{
			rank: rank,
			Descriptor: Descriptor{
				Name: LayerTextProperty(rank),
				Metadata: Metadata{
					Title:       name + " layer text",
					Type:        TypeString,
					Description: "The text of the " + name + " layer",
				},
			},
		})
		r.add(&property{
			rank: rank,
			ttl:  true,
			Descriptor: Descriptor{
				Name: LayerTTLProperty(rank),
				Metadata: Metadata{
					Title:       name + " layer text (time-to-live)",
					Type:        TypeInteger,
					Description: "The time-to-live of the " + name + " layer. Value -1 deactivates ttl",
					Unit:        d.TTLUnit().String(),
				},
			},
		})
	}
	return r
}

func (r *Registry) add(p *property) {
	r.props = append(r.props, p)
	r.byName[p.Name] = p
}

// Display returns the display behind the registry.
func (r *Registry) Display() *compositor.Display {
	return r.display
}

// Descriptors returns every property in a stable order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.props))
	for i, p := range r.props {
		out[i] = p.Descriptor
	}
	return out
}

// Describe returns the descriptor of a single property.
func (r *Registry) Describe(name string) (Descriptor, error) {
	p, err := r.lookup(name)
	if err != nil {
		return Descriptor{}, err
	}
	return p.Descriptor, nil
}

// Get returns the current value of a property.
func (r *Registry) Get(name string) (any, error) {
	if _, err := r.lookup(name); err != nil {
		return nil, err
	}
	return r.Values()[name], nil
}

// Values returns every property value read from one consistent snapshot.
func (r *Registry) Values() map[string]any {
	return Values(r.display.Snapshot())
}

// Values flattens a snapshot into property values.
func Values(s compositor.Snapshot) map[string]any {
	values := make(map[string]any, 1+2*compositor.LayerCount)
	values[TextProperty] = s.Text
	for _, l := range s.Layers {
		values[LayerTextProperty(l.Rank)] = l.Text
		values[LayerTTLProperty(l.Rank)] = l.TTL
	}
	return values
}

// Set writes a property. A *compositor.DisplayWriteError means the value
// was applied but the device did not show it.
func (r *Registry) Set(name string, value any) error {
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	if p.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	layer, err := r.display.Panel(p.rank)
	if err != nil {
		return err
	}

	if p.ttl {
		ttl, err := toInt(value)
		if err != nil {
			return fmt.Errorf("%w for %s: %w", ErrInvalidValue, name, err)
		}
		if err := layer.UpdateTTL(ttl); err != nil {
			if errors.Is(err, compositor.ErrInvalidTTL) {
				return fmt.Errorf("%w for %s: %w", ErrInvalidValue, name, err)
			}
			return err
		}
		return nil
	}

	text, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w for %s: expected string, got %T", ErrInvalidValue, name, value)
	}
	return layer.UpdateText(text)
}

func (r *Registry) lookup(name string) (*property, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// toInt accepts the integer shapes produced by JSON decoders, D-Bus and
// command lines.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		// -MinInt is a power of two, so the float comparison is exact.
		if n < math.MinInt || n >= -float64(math.MinInt) {
			return 0, fmt.Errorf("%v is out of range", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n.String())
		}
		if i < math.MinInt || i > math.MaxInt {
			return 0, fmt.Errorf("%q is out of range", n.String())
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
