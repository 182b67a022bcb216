package pluginapi

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns every running instance, keyed by driver type and instance
// ID, and is the only thing that starts, reconfigures, or stops them.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]map[string]Instance // type -> id -> instance
	rootCtx   context.Context
	env       *HostEnv
}

// NewManager creates a manager bound to rootCtx (context.Background() if
// nil) and env, the shared dependencies passed to every instance's Init.
func NewManager(rootCtx context.Context, env *HostEnv) *Manager {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Manager{
		instances: make(map[string]map[string]Instance),
		rootCtx:   rootCtx,
		env:       env,
	}
}

// CreateWithContext builds and starts an instance of type typ under
// parentCtx (rootCtx if nil), registering it under id.
func (m *Manager) CreateWithContext(parentCtx context.Context, typ, id string, cfg InstanceConfig) (Instance, error) {
	if typ == "" || id == "" {
		return nil, fmt.Errorf("pluginapi: empty type or id")
	}

	f, ok := GetFactory(typ)
	if !ok {
		return nil, fmt.Errorf("pluginapi: no factory registered for type %q", typ)
	}

	inst, err := f.New(id, cfg)
	if err != nil {
		return nil, fmt.Errorf("pluginapi: create instance type=%s id=%s: %w", typ, id, err)
	}

	ctx := parentCtx
	if ctx == nil {
		ctx = m.rootCtx
	}
	if err := inst.Init(ctx, m.env); err != nil {
		return nil, fmt.Errorf("pluginapi: init instance type=%s id=%s: %w", typ, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[typ]; !ok {
		m.instances[typ] = make(map[string]Instance)
	}
	m.instances[typ][id] = inst
	return inst, nil
}

// Create is CreateWithContext using the manager's root context.
func (m *Manager) Create(typ, id string, cfg InstanceConfig) (Instance, error) {
	return m.CreateWithContext(nil, typ, id, cfg)
}

// Update pushes a new configuration to a running instance.
func (m *Manager) Update(typ, id string, cfg InstanceConfig) error {
	m.mu.RLock()
	byType, ok := m.instances[typ]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("pluginapi: no instances for type %q", typ)
	}
	inst, ok := byType[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("pluginapi: no instance type=%s id=%s", typ, id)
	}
	return inst.UpdateConfig(cfg)
}

// Get returns a running instance by type and ID.
func (m *Manager) Get(typ, id string) (Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byType, ok := m.instances[typ]
	if !ok {
		return nil, false
	}
	inst, ok := byType[id]
	return inst, ok
}

// ByType returns every running instance of the given type.
func (m *Manager) ByType(typ string) []Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byType, ok := m.instances[typ]
	if !ok {
		return nil
	}
	out := make([]Instance, 0, len(byType))
	for _, inst := range byType {
		out = append(out, inst)
	}
	return out
}

// Destroy stops and removes a single instance.
func (m *Manager) Destroy(typ, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType, ok := m.instances[typ]
	if !ok {
		return fmt.Errorf("pluginapi: no instances for type %q", typ)
	}
	inst, ok := byType[id]
	if !ok {
		return fmt.Errorf("pluginapi: no instance type=%s id=%s", typ, id)
	}
	if err := inst.Close(); err != nil {
		return fmt.Errorf("pluginapi: close instance type=%s id=%s: %w", typ, id, err)
	}
	delete(byType, id)
	if len(byType) == 0 {
		delete(m.instances, typ)
	}
	return nil
}

// DestroyAll stops and removes every instance, for use at shutdown.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for typ, byType := range m.instances {
		for id, inst := range byType {
			_ = inst.Close()
			delete(byType, id)
		}
		delete(m.instances, typ)
	}
}
