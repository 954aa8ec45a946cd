package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auditflow/auditflow/types"
)

type stubConnector struct {
	name    string
	schemas []types.Schema
}

func (c *stubConnector) Name() string                  { return c.name }
func (c *stubConnector) OutputSchemas() []types.Schema { return c.schemas }
func (c *stubConnector) Extract(_ context.Context, schema types.Schema) (types.Message, error) {
	return types.NewMessage(schema, map[string]any{}), nil
}

type stubAnalyser struct {
	name    string
	combos  []types.RequirementCombination
	schemas []types.Schema
}

func (a *stubAnalyser) Name() string                                       { return a.name }
func (a *stubAnalyser) InputRequirements() []types.RequirementCombination  { return a.combos }
func (a *stubAnalyser) OutputSchemas() []types.Schema                      { return a.schemas }
func (a *stubAnalyser) Process(_ context.Context, _ []types.Message, schema types.Schema) (types.Message, error) {
	return types.NewMessage(schema, map[string]any{}), nil
}

func connectorFactory(c Connector) ConnectorFactory {
	return func(map[string]any, *zap.Logger) (Connector, error) { return c, nil }
}

func analyserFactory(a Analyser) AnalyserFactory {
	return func(map[string]any, *zap.Logger) (Analyser, error) { return a, nil }
}

func TestRegistryCreateConnector(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	conn := &stubConnector{name: "file", schemas: []types.Schema{types.NewSchema("source_code", "1.0.0")}}
	require.NoError(t, reg.RegisterConnector("file", connectorFactory(conn)))

	got, err := reg.CreateConnector("file", nil)
	require.NoError(t, err)
	assert.Equal(t, "file", got.Name())
}

func TestRegistryUnknownComponent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.RegisterConnector("file", connectorFactory(&stubConnector{
		name:    "file",
		schemas: []types.Schema{types.NewSchema("source_code", "1.0.0")},
	})))

	_, err := reg.CreateConnector("database", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownComponent, types.GetErrorCode(err))
	// Diagnostics name what is registered.
	assert.Contains(t, err.Error(), "file")

	_, err = reg.CreateAnalyser("patterns", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownComponent, types.GetErrorCode(err))
}

func TestRegistryRejectsDuplicateTypeNames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	conn := &stubConnector{name: "file", schemas: []types.Schema{types.NewSchema("source_code", "1.0.0")}}
	require.NoError(t, reg.RegisterConnector("file", connectorFactory(conn)))

	assert.Error(t, reg.RegisterConnector("file", connectorFactory(conn)))
	// Names are unique across kinds, not per kind.
	assert.Error(t, reg.RegisterAnalyser("file", analyserFactory(&stubAnalyser{})))
}

func TestRegistryValidatesAnalyserContract(t *testing.T) {
	t.Parallel()

	finding := types.NewSchema("finding", "1.0.0")
	code := types.NewInputRequirement("source_code", "1.0.0")

	tests := []struct {
		name     string
		analyser *stubAnalyser
		wantErr  string
	}{
		{
			name:     "no combinations",
			analyser: &stubAnalyser{schemas: []types.Schema{finding}},
			wantErr:  "no input requirement combinations",
		},
		{
			name: "no output schemas",
			analyser: &stubAnalyser{
				combos: []types.RequirementCombination{{code}},
			},
			wantErr: "no output schemas",
		},
		{
			name: "empty combination",
			analyser: &stubAnalyser{
				combos:  []types.RequirementCombination{{}},
				schemas: []types.Schema{finding},
			},
			wantErr: "empty requirement combination",
		},
		{
			name: "duplicate combinations",
			analyser: &stubAnalyser{
				combos: []types.RequirementCombination{
					{code},
					{types.NewInputRequirement("source_code", "1.0.0")},
				},
				schemas: []types.Schema{finding},
			},
			wantErr: "duplicate requirement combination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry(nil)
			require.NoError(t, reg.RegisterAnalyser("bad", analyserFactory(tt.analyser)))

			_, err := reg.CreateAnalyser("bad", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
		})
	}
}

func TestRegistryTypeListings(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.RegisterConnector("file", connectorFactory(&stubConnector{
		name:    "file",
		schemas: []types.Schema{types.NewSchema("source_code", "1.0.0")},
	})))
	require.NoError(t, reg.RegisterAnalyser("patterns", analyserFactory(&stubAnalyser{
		name:    "patterns",
		combos:  []types.RequirementCombination{{types.NewInputRequirement("source_code", "1.0.0")}},
		schemas: []types.Schema{types.NewSchema("finding", "1.0.0")},
	})))

	assert.Equal(t, []string{"file"}, reg.ConnectorTypes())
	assert.Equal(t, []string{"patterns"}, reg.AnalyserTypes())
}
