package webthing

import (
	"strings"

	"github.com/jmylchreest/pidisplay/internal/properties"
)

// ThingID is the fixed identifier of the display thing.
const ThingID = "urn:dev:ops:display-1"

const schemaContext = "https://iot.mozilla.org/schemas"

// Link is a WebThing hypermedia link.
type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	MediaType string `json:"mediaType,omitempty"`
}

// PropertyDescription is one entry of the properties map in a Thing
// Description.
type PropertyDescription struct {
	properties.Metadata
	Links []Link `json:"links"`
}

// Description is the Thing Description document served at the root.
type Description struct {
	Context             string                         `json:"@context"`
	ID                  string                         `json:"id"`
	Title               string                         `json:"title"`
	Type                []string                       `json:"@type"`
	Description         string                         `json:"description"`
	Base                string                         `json:"base"`
	SecurityDefinitions map[string]map[string]string   `json:"securityDefinitions"`
	Security            string                         `json:"security"`
	Properties          map[string]PropertyDescription `json:"properties"`
	Actions             map[string]any                 `json:"actions"`
	Events              map[string]any                 `json:"events"`
	Links               []Link                         `json:"links"`
}

// Title returns the thing title for a display name.
func Title(name string) string {
	return strings.TrimSpace(name + " Display")
}

// describe builds the Thing Description as seen from host.
func describe(name, description, host string, descriptors []properties.Descriptor) Description {
	td := Description{
		Context:     schemaContext,
		ID:          ThingID,
		Title:       Title(name),
		Type:        []string{"Display"},
		Description: description,
		Base:        "http://" + host + "/",
		SecurityDefinitions: map[string]map[string]string{
			"nosec_sc": {"scheme": "nosec"},
		},
		Security:   "nosec_sc",
		Properties: make(map[string]PropertyDescription, len(descriptors)),
		Actions:    map[string]any{},
		Events:     map[string]any{},
		Links: []Link{
			{Rel: "properties", Href: "/properties"},
			{Rel: "actions", Href: "/actions"},
			{Rel: "events", Href: "/events"},
			{Rel: "alternate", Href: "ws://" + host},
		},
	}
	for _, d := range descriptors {
		td.Properties[d.Name] = PropertyDescription{
			Metadata: d.Metadata,
			Links:    []Link{{Rel: "property", Href: "/properties/" + d.Name}},
		}
	}
	return td
}
