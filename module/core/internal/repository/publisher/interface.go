package publisher

import (
	"context"

	"github.com/nandanugg/region-check/module/core/domain"
)

type RegionPublisher interface {
	PublishEvent(ctx context.Context, event *domain.RegionEvent) error
}
