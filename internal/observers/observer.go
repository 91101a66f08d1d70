package observers

import (
	"context"

	"github.com/yairfalse/tapio-enrich/internal/observers/base"
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// Observer is implemented by every observer
type Observer interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan *domain.EnrichedEvent
	Statistics() *base.Statistics
	Health() *base.HealthStatus
}
