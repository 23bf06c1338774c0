package provider

import (
	"context"
	"sync"

	"github.com/nandanugg/region-check/module/core/domain"
)

// LocationProvider acquires fixes from devices. Errors returned by Locate
// carry a *domain.ProviderError.
type LocationProvider interface {
	Locate(ctx context.Context, deviceID string, opts domain.LocateOptions) (domain.Fix, error)
	Watch(ctx context.Context, deviceID string) (*Watch, error)
}

// Watch is a stream of fixes for one device. C is closed once Stop has run,
// either explicitly or because the watch context ended.
type Watch struct {
	C <-chan domain.Fix

	once   sync.Once
	cancel func()
}

func NewWatch(c <-chan domain.Fix, cancel func()) *Watch {
	return &Watch{C: c, cancel: cancel}
}

func (w *Watch) Stop() {
	w.once.Do(w.cancel)
}
