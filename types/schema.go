package types

import (
	"fmt"
	"strings"
)

// Schema identifies the shape of a Message's content by name and version.
// Two schemas are equal iff name and version match exactly; the framework
// has no semantic-version compatibility logic.
type Schema struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NewSchema creates a schema value.
func NewSchema(name, version string) Schema {
	return Schema{Name: name, Version: version}
}

// ParseSchema parses the "name/version" form used in pipeline definitions.
func ParseSchema(s string) (Schema, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Schema{}, fmt.Errorf("invalid schema reference %q: expected \"name/version\"", s)
	}
	return Schema{Name: parts[0], Version: parts[1]}, nil
}

// String returns the canonical "name/version" form.
func (s Schema) String() string {
	return s.Name + "/" + s.Version
}

// Equal reports exact name and version equality.
func (s Schema) Equal(other Schema) bool {
	return s.Name == other.Name && s.Version == other.Version
}

// IsZero reports whether the schema is unset.
func (s Schema) IsZero() bool {
	return s.Name == "" && s.Version == ""
}
