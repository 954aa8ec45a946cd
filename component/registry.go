package component

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/types"
)

// ConnectorFactory builds a connector from the properties block of a
// pipeline definition.
type ConnectorFactory func(properties map[string]any, logger *zap.Logger) (Connector, error)

// AnalyserFactory builds an analyser from the properties block of a
// pipeline definition.
type AnalyserFactory func(properties map[string]any, logger *zap.Logger) (Analyser, error)

// Registry maps component type names to factories. It is an explicit
// dependency passed to the planner, not a process-global, so tests and
// embedders can compose their own component sets.
type Registry struct {
	connectors map[string]ConnectorFactory
	analysers  map[string]AnalyserFactory
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connectors: make(map[string]ConnectorFactory),
		analysers:  make(map[string]AnalyserFactory),
		logger:     logger.With(zap.String("component", "registry")),
	}
}

// RegisterConnector registers a connector factory under a type name.
// Names are unique across both component kinds.
func (r *Registry) RegisterConnector(name string, factory ConnectorFactory) error {
	if name == "" {
		return types.NewError(types.ErrInvalidConfig, "connector type name must not be empty")
	}
	if factory == nil {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("connector %q: factory must not be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("component type %q already registered", name))
	}
	r.connectors[name] = factory

	r.logger.Info("connector registered", zap.String("type", name))
	return nil
}

// RegisterAnalyser registers an analyser factory under a type name.
// Names are unique across both component kinds.
func (r *Registry) RegisterAnalyser(name string, factory AnalyserFactory) error {
	if name == "" {
		return types.NewError(types.ErrInvalidConfig, "analyser type name must not be empty")
	}
	if factory == nil {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("analyser %q: factory must not be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("component type %q already registered", name))
	}
	r.analysers[name] = factory

	r.logger.Info("analyser registered", zap.String("type", name))
	return nil
}

func (r *Registry) taken(name string) bool {
	_, conn := r.connectors[name]
	_, ana := r.analysers[name]
	return conn || ana
}

// CreateConnector instantiates the named connector type.
func (r *Registry) CreateConnector(name string, properties map[string]any) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.connectors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrUnknownComponent,
			fmt.Sprintf("unknown connector type %q (registered: %s)", name, joinNames(r.ConnectorTypes())))
	}

	conn, err := factory(properties, r.logger)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("create connector %q", name)).WithCause(err)
	}
	if len(conn.OutputSchemas()) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("connector %q declares no output schemas", name))
	}
	return conn, nil
}

// CreateAnalyser instantiates the named analyser type and validates its
// declared contract: at least one requirement combination, at least one
// output schema, and no two combinations with the same schema set (which
// would make requirement matching ambiguous).
func (r *Registry) CreateAnalyser(name string, properties map[string]any) (Analyser, error) {
	r.mu.RLock()
	factory, ok := r.analysers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrUnknownComponent,
			fmt.Sprintf("unknown analyser type %q (registered: %s)", name, joinNames(r.AnalyserTypes())))
	}

	ana, err := factory(properties, r.logger)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("create analyser %q", name)).WithCause(err)
	}
	if err := validateAnalyserContract(name, ana); err != nil {
		return nil, err
	}
	return ana, nil
}

func validateAnalyserContract(name string, ana Analyser) error {
	combos := ana.InputRequirements()
	if len(combos) == 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("analyser %q declares no input requirement combinations", name))
	}
	if len(ana.OutputSchemas()) == 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("analyser %q declares no output schemas", name))
	}

	seen := make(map[string]struct{}, len(combos))
	for _, c := range combos {
		if len(c) == 0 {
			return types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("analyser %q declares an empty requirement combination", name))
		}
		key := c.String()
		if _, dup := seen[key]; dup {
			return types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("analyser %q declares duplicate requirement combination %s", name, key))
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ConnectorTypes returns the registered connector type names, sorted.
func (r *Registry) ConnectorTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnalyserTypes returns the registered analyser type names, sorted.
func (r *Registry) AnalyserTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analysers))
	for name := range r.analysers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
