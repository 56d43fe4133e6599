package credstore

import "sync"

var _ Store = (*Memory)(nil)

// Memory keeps credentials for the lifetime of the process. This is
// the closest analogue to a browser tab's session: nothing survives a
// restart.
type Memory struct {
	mu     sync.RWMutex
	values map[Kind]string
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{values: make(map[Kind]string)}
}

func (m *Memory) Get(kind Kind) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[kind]
	return value, ok, nil
}

func (m *Memory) Set(kind Kind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[kind] = value
	return nil
}

func (m *Memory) SetPair(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[AccessToken] = access
	m.values[RefreshToken] = refresh
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[Kind]string)
	return nil
}
