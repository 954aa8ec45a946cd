// Package types provides core value types used across the auditflow framework.
// This package has ZERO dependencies on other auditflow packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a schema-tagged payload exchanged between pipeline steps.
// A Message is immutable once created; ownership transfers to the artifact
// store on save.
type Message struct {
	// ID uniquely identifies this message.
	ID string `json:"id"`
	// Schema identifies the shape/contract of Content.
	Schema Schema `json:"schema"`
	// Content is the structured payload, shaped per Schema.
	Content map[string]any `json:"content"`
	// Metadata carries producer information (connector/analyser type, source).
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the message was produced.
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message tagged with the given schema.
func NewMessage(schema Schema, content map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Schema:    schema,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// WithMetadata returns a copy of the message with the metadata entry set.
func (m Message) WithMetadata(key string, value any) Message {
	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta[key] = value
	m.Metadata = meta
	return m
}

// MarshalJSON ensures a stable wire form for persisted artifacts.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(alias(m))
}

// UnmarshalMessage decodes a persisted artifact document.
func UnmarshalMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
