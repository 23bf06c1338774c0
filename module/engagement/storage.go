package engagement

import (
	"sync"

	"github.com/rotisserie/eris"
)

var (
	ErrSessionClosed = eris.New("engagement session closed")
	ErrNoProfile     = eris.New("no stored profile")
)

// Storage persists the viewer profile between sessions.
type Storage interface {
	Get() (Profile, error)
	Set(p Profile) error
}

// Prober is implemented by storages that can tell whether they work
// before being relied on.
type Prober interface {
	Probe() error
}

type MemoryStorage struct {
	mu      sync.Mutex
	profile *Profile
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Get() (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return Profile{}, ErrNoProfile
	}
	return *m.profile, nil
}

func (m *MemoryStorage) Set(p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
	return nil
}

// ChooseStorage returns preferred when it is usable, otherwise a fresh
// in-memory storage.
func ChooseStorage(preferred Storage) Storage {
	if preferred == nil {
		return NewMemoryStorage()
	}
	if p, ok := preferred.(Prober); ok {
		if err := p.Probe(); err != nil {
			return NewMemoryStorage()
		}
	}
	return preferred
}
