package analytics

import (
	"context"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// TargetInteractionSource reads the interaction records of one target type.
// Implementations report a missing record with interaction.ErrNotFound.
type TargetInteractionSource interface {
	TargetType() interaction.TargetType
	Earliest(ctx context.Context, f interaction.Filter) (*interaction.Record, error)
	FirstOccurrences(ctx context.Context, f interaction.Filter, before time.Time) ([]interaction.Record, error)
	Find(ctx context.Context, f interaction.Filter, order interaction.Order, limit int) ([]interaction.Record, error)
	Count(ctx context.Context, f interaction.Filter) (int, error)
	ContactIDs(ctx context.Context, f interaction.Filter) ([]int64, error)
}

// ContactSource aggregates contact attributes.
type ContactSource interface {
	CountryCounts(ctx context.Context, scope interaction.ContactScope) ([]interaction.CountryCount, error)
	DeviceCounts(ctx context.Context, scope interaction.ContactScope, detailed bool) ([]interaction.DeviceCount, error)
}
