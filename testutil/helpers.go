package testutil

import (
	"testing"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/component"
)

// NewRegistry builds a component registry from mock components, one factory
// per mock returning that same instance.
func NewRegistry(t *testing.T, connectors []*MockConnector, analysers []*MockAnalyser) *component.Registry {
	t.Helper()
	reg := component.NewRegistry(zap.NewNop())
	for _, c := range connectors {
		c := c
		if err := reg.RegisterConnector(c.TypeName, func(map[string]any, *zap.Logger) (component.Connector, error) {
			return c, nil
		}); err != nil {
			t.Fatalf("register connector %s: %v", c.TypeName, err)
		}
	}
	for _, a := range analysers {
		a := a
		if err := reg.RegisterAnalyser(a.TypeName, func(map[string]any, *zap.Logger) (component.Analyser, error) {
			return a, nil
		}); err != nil {
			t.Fatalf("register analyser %s: %v", a.TypeName, err)
		}
	}
	return reg
}
