package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// BuildChart buckets the first occurrence of every activity kind of the target
// selected by f. The window starts one interval before the earliest record was
// created and spans MaxIntervals(interval) intervals. Unsupported intervals
// and targets without records yield a chart with no activity.
func BuildChart(
	ctx context.Context,
	src TargetInteractionSource,
	f interaction.Filter,
	interval string,
) (*ChartData, error) {
	chart := &ChartData{
		Interval:     Interval(interval),
		Interactions: src.TargetType().ActivityKinds(),
		Activity:     make(map[interaction.Kind]map[int64]int),
	}

	if !chart.Interval.Supported() {
		return chart, nil
	}
	chart.Format, _ = BucketFormat(interval)

	earliest, err := src.Earliest(ctx, f)
	if errors.Is(err, interaction.ErrNotFound) {
		return chart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest record: %w", err)
	}

	start, end := Window(chart.Interval, earliest.DateCreated)
	chart.StartDateTime = &start

	records, err := src.FirstOccurrences(ctx, f, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get first occurrences: %w", err)
	}

	chart.Activity, chart.LastInteraction = Bucketize(records, chart.Interactions, chart.Interval, end)

	return chart, nil
}

// Window returns the chart window for a target whose first record was created
// at first.
func Window(interval Interval, first time.Time) (start, end time.Time) {
	start = interval.Shift(first, -1)
	end = interval.Shift(start, MaxIntervals(string(interval)))
	return start, end
}

// Bucketize counts, per kind, the records whose first occurrence falls in each
// bucket before end. It also returns the latest counted occurrence.
func Bucketize(
	records []interaction.Record,
	kinds []interaction.Kind,
	interval Interval,
	end time.Time,
) (map[interaction.Kind]map[int64]int, *time.Time) {
	activity := make(map[interaction.Kind]map[int64]int)
	var last *time.Time

	for i := range records {
		for _, kind := range kinds {
			at := records[i].At(kind)
			if at == nil || !at.Before(end) {
				continue
			}

			if last == nil || at.After(*last) {
				t := *at
				last = &t
			}

			buckets, ok := activity[kind]
			if !ok {
				buckets = make(map[int64]int)
				activity[kind] = buckets
			}
			buckets[interval.BucketKey(*at)]++
		}
	}

	return activity, last
}
