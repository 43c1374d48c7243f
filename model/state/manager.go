package state

import (
	"log/slog"
	"sort"

	"github.com/ensemblehq/conductor/internal/clock"
	"github.com/ensemblehq/conductor/logging"
	"github.com/ensemblehq/conductor/model"
)

// Manager is the per-execution shared state container. A Manager is never
// mutated after construction: every write path returns a new instance, so
// any execution context that captured an earlier Manager stays valid.
type Manager struct {
	values    map[string]interface{}
	initial   map[string]bool
	accessLog []Access
	logger    *slog.Logger
}

// Option customises a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the logger used for undeclared-write warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithAccessLog seeds the access log, used when rehydrating a suspended
// execution.
func WithAccessLog(entries []Access) Option {
	return func(m *Manager) { m.accessLog = append([]Access(nil), entries...) }
}

// New creates a Manager seeded with the supplied initial values.
func New(initial map[string]interface{}, options ...Option) *Manager {
	m := &Manager{
		values:  make(map[string]interface{}, len(initial)),
		initial: make(map[string]bool, len(initial)),
		logger:  logging.Default(),
	}
	for k, v := range initial {
		m.values[k] = v
		m.initial[k] = true
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Value returns the current value of key.
func (m *Manager) Value(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Snapshot returns a copy of the full state map, safe for the caller to
// retain or serialize.
func (m *Manager) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// AccessLog returns a copy of the ordered access log.
func (m *Manager) AccessLog() []Access {
	return append([]Access(nil), m.accessLog...)
}

// StateForAgent returns a frozen projection of the keys the step declared
// readable, plus a collector for writes gated by the declared writable keys.
// Building the projection records one read access per declared key present
// in the state.
func (m *Manager) StateForAgent(agent string, decl *model.StateDeclaration) *AgentState {
	ctx := &AgentState{
		Data:    map[string]interface{}{},
		agent:   agent,
		writers: map[string]bool{},
		pending: map[string]interface{}{},
		logger:  m.logger,
	}
	if decl == nil {
		return ctx
	}
	now := clock.Now()
	for _, key := range decl.Use {
		value, ok := m.values[key]
		if !ok {
			continue
		}
		ctx.Data[key] = value
		ctx.log = append(ctx.log, Access{Agent: agent, Key: key, Op: OpRead, At: now})
	}
	for _, key := range decl.Set {
		ctx.writers[key] = true
	}
	return ctx
}

// SetFromAgent applies updates on behalf of an agent in one shot, honouring
// the step's write declaration. Writes to undeclared keys are dropped with a
// warning; the receiver is left untouched and the merged state is returned
// as a new Manager.
func (m *Manager) SetFromAgent(agent string, updates map[string]interface{}, decl *model.StateDeclaration) *Manager {
	allowed, entries := m.gate(agent, updates, decl)
	return m.Apply(allowed, entries)
}

// Apply merges a batch of pending updates and access-log entries into a new
// Manager. When both are empty the receiver itself is returned.
func (m *Manager) Apply(updates map[string]interface{}, entries []Access) *Manager {
	if len(updates) == 0 && len(entries) == 0 {
		return m
	}
	next := &Manager{
		values:  make(map[string]interface{}, len(m.values)+len(updates)),
		initial: m.initial,
		logger:  m.logger,
	}
	for k, v := range m.values {
		next.values[k] = v
	}
	for k, v := range updates {
		next.values[k] = v
	}
	next.accessLog = make([]Access, 0, len(m.accessLog)+len(entries))
	next.accessLog = append(next.accessLog, m.accessLog...)
	next.accessLog = append(next.accessLog, entries...)
	return next
}

func (m *Manager) gate(agent string, updates map[string]interface{}, decl *model.StateDeclaration) (map[string]interface{}, []Access) {
	if len(updates) == 0 {
		return nil, nil
	}
	writable := map[string]bool{}
	if decl != nil {
		for _, key := range decl.Set {
			writable[key] = true
		}
	}
	allowed := map[string]interface{}{}
	var entries []Access
	now := clock.Now()
	for key, value := range updates {
		if !writable[key] {
			m.logger.Warn("dropping write to undeclared state key",
				"agent", agent, "key", key)
			continue
		}
		allowed[key] = value
		entries = append(entries, Access{Agent: agent, Key: key, Op: OpWrite, At: now})
	}
	return allowed, entries
}

// AgentState is the projection handed to a single step: a frozen copy of the
// declared readable keys plus a pending-update collector. Mutating Data has
// no effect on the owning Manager.
type AgentState struct {
	Data map[string]interface{}

	agent   string
	writers map[string]bool
	pending map[string]interface{}
	log     []Access
	logger  *slog.Logger
}

// Set accumulates a pending update for a declared writable key. Writes to
// undeclared keys are dropped with a warning, never merged.
func (a *AgentState) Set(key string, value interface{}) {
	if !a.writers[key] {
		a.logger.Warn("dropping write to undeclared state key",
			"agent", a.agent, "key", key)
		return
	}
	a.pending[key] = value
	a.log = append(a.log, Access{Agent: a.agent, Key: key, Op: OpWrite, At: clock.Now()})
}

// PendingUpdates drains the accumulated updates together with the access-log
// entries generated since the projection was created.
func (a *AgentState) PendingUpdates() (map[string]interface{}, []Access) {
	updates := a.pending
	entries := a.log
	a.pending = map[string]interface{}{}
	a.log = nil
	return updates, entries
}

// AccessReport derives which initial-state keys were never read along with
// per-key access counters.
func (m *Manager) AccessReport() *AccessReport {
	report := &AccessReport{AccessPatterns: map[string]*KeyAccess{}}
	read := map[string]bool{}
	for _, entry := range m.accessLog {
		pattern := report.AccessPatterns[entry.Key]
		if pattern == nil {
			pattern = &KeyAccess{}
			report.AccessPatterns[entry.Key] = pattern
		}
		switch entry.Op {
		case OpRead:
			pattern.Reads++
			read[entry.Key] = true
		case OpWrite:
			pattern.Writes++
		}
		pattern.addAgent(entry.Agent)
	}
	for key := range m.initial {
		if !read[key] {
			report.UnusedKeys = append(report.UnusedKeys, key)
		}
	}
	sort.Strings(report.UnusedKeys)
	return report
}
