package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an entity identifier as reported by the DevOps API. Some entities use
// GUIDs and others integers, so IDs accept either JSON strings or numbers and
// are always compared as strings.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts "abc", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

// IDs converts a slice of strings into IDs.
func IDs(values ...string) []ID {
	out := make([]ID, len(values))
	for i, v := range values {
		out[i] = ID(v)
	}
	return out
}

// ProjectRef is the denormalized project reference carried by most records.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Identity is a user or service principal as reported by the DevOps API.
type Identity struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	UniqueName  string `json:"uniqueName,omitempty"`
}
