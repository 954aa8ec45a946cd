// Package testutil provides mock components and helpers shared by tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/auditflow/auditflow/types"
)

// Invocation records one component call window, for ordering and overlap
// assertions in executor tests.
type Invocation struct {
	StartedAt  time.Time
	FinishedAt time.Time
}

// MockConnector is a configurable Connector test double.
type MockConnector struct {
	TypeName string
	Schemas  []types.Schema

	// ExtractFunc overrides the default behavior of returning an empty
	// message tagged with the requested schema.
	ExtractFunc func(ctx context.Context, schema types.Schema) (types.Message, error)

	mu          sync.Mutex
	invocations []Invocation
}

func (m *MockConnector) Name() string                  { return m.TypeName }
func (m *MockConnector) OutputSchemas() []types.Schema { return m.Schemas }

func (m *MockConnector) Extract(ctx context.Context, schema types.Schema) (types.Message, error) {
	started := time.Now()
	var msg types.Message
	var err error
	if m.ExtractFunc != nil {
		msg, err = m.ExtractFunc(ctx, schema)
	} else {
		msg = types.NewMessage(schema, map[string]any{"source": m.TypeName})
	}
	m.record(started)
	return msg, err
}

func (m *MockConnector) record(started time.Time) {
	m.mu.Lock()
	m.invocations = append(m.invocations, Invocation{StartedAt: started, FinishedAt: time.Now()})
	m.mu.Unlock()
}

// Invocations returns the recorded call windows.
func (m *MockConnector) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.invocations))
	copy(out, m.invocations)
	return out
}

// MockAnalyser is a configurable Analyser test double.
type MockAnalyser struct {
	TypeName string
	Combos   []types.RequirementCombination
	Schemas  []types.Schema

	// ProcessFunc overrides the default behavior of returning a message
	// recording how many inputs arrived.
	ProcessFunc func(ctx context.Context, inputs []types.Message, schema types.Schema) (types.Message, error)

	mu          sync.Mutex
	invocations []Invocation
	received    [][]types.Message
}

func (m *MockAnalyser) Name() string                                      { return m.TypeName }
func (m *MockAnalyser) InputRequirements() []types.RequirementCombination { return m.Combos }
func (m *MockAnalyser) OutputSchemas() []types.Schema                     { return m.Schemas }

func (m *MockAnalyser) Process(ctx context.Context, inputs []types.Message, schema types.Schema) (types.Message, error) {
	started := time.Now()
	var msg types.Message
	var err error
	if m.ProcessFunc != nil {
		msg, err = m.ProcessFunc(ctx, inputs, schema)
	} else {
		msg = types.NewMessage(schema, map[string]any{"input_count": len(inputs)})
	}

	m.mu.Lock()
	m.invocations = append(m.invocations, Invocation{StartedAt: started, FinishedAt: time.Now()})
	m.received = append(m.received, inputs)
	m.mu.Unlock()
	return msg, err
}

// Invocations returns the recorded call windows.
func (m *MockAnalyser) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.invocations))
	copy(out, m.invocations)
	return out
}

// Received returns the input batches passed to each Process call.
func (m *MockAnalyser) Received() [][]types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]types.Message, len(m.received))
	copy(out, m.received)
	return out
}
