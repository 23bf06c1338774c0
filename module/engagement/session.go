package engagement

import (
	"context"
	"sync"
)

// Adapter opens an engagement session for one anonymous viewer.
type Adapter interface {
	Init(ctx context.Context, opts Options) (*Session, error)
}

type Options struct {
	Endpoint string
	ClientID string
	// Storage keeps the profile between sessions. Nil falls back to memory.
	Storage Storage
}

type Profile struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	AccessToken string `json:"access_token"`
}

// Localization maps a language to widget label overrides.
type Localization map[string]map[string]string

// DefaultLocalization relabels quiz and slider vote buttons.
func DefaultLocalization() Localization {
	return Localization{
		"en": {
			"widget.quiz.voteButton.label":   "SUBMIT",
			"widget.quiz.votedText":          "SUBMITTED!",
			"widget.slider.voteButton.label": "SUBMIT",
			"widget.slider.votedText":        "SUBMITTED!",
		},
	}
}

// Session is owned by whoever called Init and must be closed by them.
type Session struct {
	mu           sync.RWMutex
	profile      Profile
	storage      Storage
	localization Localization
	closed       bool
}

func newSession(p Profile, storage Storage) *Session {
	return &Session{profile: p, storage: storage, localization: DefaultLocalization()}
}

func (s *Session) Profile() (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Profile{}, ErrSessionClosed
	}
	return s.profile, nil
}

// Localize returns the override for key in lang, or key itself.
func (s *Session) Localize(lang, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.localization[lang][key]; ok {
		return v
	}
	return key
}

// ApplyLocalization merges overrides into the session's labels.
func (s *Session) ApplyLocalization(l Localization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for lang, labels := range l {
		if s.localization[lang] == nil {
			s.localization[lang] = map[string]string{}
		}
		for k, v := range labels {
			s.localization[lang][k] = v
		}
	}
}

func (s *Session) Localization() Localization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Localization, len(s.localization))
	for lang, labels := range s.localization {
		cp := make(map[string]string, len(labels))
		for k, v := range labels {
			cp[k] = v
		}
		out[lang] = cp
	}
	return out
}

// Close persists the profile and invalidates the session. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.storage.Set(s.profile)
}
