package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewCollectionBundle creates a collection Bundle from a list of resources.
// Resources are marshalled in order; entry fullUrl uses urn:uuid form so the
// bundle stays self-contained for hand-off.
func NewCollectionBundle(id string, timestamp *time.Time, resources ...interface{}) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle entry: %w", err)
		}
		entries = append(entries, BundleEntry{
			FullURL:  "urn:uuid:" + resourceID(raw),
			Resource: raw,
		})
	}
	return &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         "collection",
		Timestamp:    timestamp,
		Entry:        entries,
	}, nil
}

// FindResource returns the raw JSON of the first entry with the given
// resourceType, or nil if the bundle has none.
func (b *Bundle) FindResource(resourceType string) json.RawMessage {
	for _, e := range b.Entry {
		if resourceType == entryType(e.Resource) {
			return e.Resource
		}
	}
	return nil
}

// FindResources returns the raw JSON of every entry with the given
// resourceType, in bundle order.
func (b *Bundle) FindResources(resourceType string) []json.RawMessage {
	var out []json.RawMessage
	for _, e := range b.Entry {
		if resourceType == entryType(e.Resource) {
			out = append(out, e.Resource)
		}
	}
	return out
}

func entryType(raw json.RawMessage) string {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ResourceType
}

func resourceID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}
