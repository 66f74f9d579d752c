package analytics

import (
	"context"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// fakeSource serves records of one target type from memory.
type fakeSource struct {
	targetType interaction.TargetType
	records    []interaction.Record
	err        error

	lastBefore time.Time
}

func (s *fakeSource) TargetType() interaction.TargetType { return s.targetType }

func (s *fakeSource) Earliest(_ context.Context, _ interaction.Filter) (*interaction.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	var earliest *interaction.Record
	for i := range s.records {
		if earliest == nil || s.records[i].DateCreated.Before(earliest.DateCreated) {
			earliest = &s.records[i]
		}
	}
	if earliest == nil {
		return nil, interaction.ErrNotFound
	}
	return earliest, nil
}

func (s *fakeSource) FirstOccurrences(_ context.Context, _ interaction.Filter, before time.Time) ([]interaction.Record, error) {
	s.lastBefore = before
	var out []interaction.Record
	for _, r := range s.records {
		if r.DateCreated.Before(before) {
			r.TargetType = s.targetType
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeSource) Find(_ context.Context, _ interaction.Filter, _ interaction.Order, _ int) ([]interaction.Record, error) {
	return s.records, s.err
}

func (s *fakeSource) Count(_ context.Context, _ interaction.Filter) (int, error) {
	return len(s.records), s.err
}

func (s *fakeSource) ContactIDs(_ context.Context, _ interaction.Filter) ([]int64, error) {
	ids := make([]int64, 0, len(s.records))
	for _, r := range s.records {
		ids = append(ids, r.ContactID)
	}
	return ids, s.err
}

type fakeContacts struct {
	countries []interaction.CountryCount
	devices   []interaction.DeviceCount
	err       error

	scope interaction.ContactScope
}

func (c *fakeContacts) CountryCounts(_ context.Context, scope interaction.ContactScope) ([]interaction.CountryCount, error) {
	c.scope = scope
	return c.countries, c.err
}

func (c *fakeContacts) DeviceCounts(_ context.Context, scope interaction.ContactScope, _ bool) ([]interaction.DeviceCount, error) {
	c.scope = scope
	return c.devices, c.err
}

func at(t time.Time) *time.Time {
	return &t
}
