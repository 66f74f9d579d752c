package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// Locations ranks the contacts in scope by country.
func Locations(
	ctx context.Context,
	contacts ContactSource,
	scope interaction.ContactScope,
	total, limit int,
) ([]Location, error) {
	rows, err := contacts.CountryCounts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get country counts: %w", err)
	}
	return BuildLocations(rows, total, limit), nil
}

// Devices ranks the contacts in scope by device, and by os and client when
// detailed.
func Devices(
	ctx context.Context,
	contacts ContactSource,
	scope interaction.ContactScope,
	detailed bool,
	total, limit int,
) ([]Device, error) {
	rows, err := contacts.DeviceCounts(ctx, scope, detailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get device counts: %w", err)
	}
	return BuildDevices(rows, detailed, total, limit), nil
}

// BuildLocations turns country groups into ranked rows with rates against
// total. Groups without a country are merged into one unknown row, which is
// only emitted when it counts at least one contact.
func BuildLocations(rows []interaction.CountryCount, total, limit int) []Location {
	locations := make([]Location, 0, len(rows)+1)
	unknown := 0

	for _, row := range rows {
		if row.Country == "" {
			unknown += row.Count
			continue
		}

		locations = append(locations, Location{
			Country:     row.Country,
			CountryCode: countryCode(row.GeoIP),
			Count:       row.Count,
			CountRate:   Rate(row.Count, total),
		})
	}

	if unknown > 0 {
		locations = append(locations, Location{
			Count:     unknown,
			CountRate: Rate(unknown, total),
		})
	}

	sort.SliceStable(locations, func(i, j int) bool {
		return locations[i].Count > locations[j].Count
	})

	return truncate(locations, limit)
}

// BuildDevices turns device groups into ranked rows with rates against total.
func BuildDevices(rows []interaction.DeviceCount, detailed bool, total, limit int) []Device {
	devices := make([]Device, 0, len(rows))

	for _, row := range rows {
		if row.Device == "" {
			continue
		}

		device := Device{
			Device:    row.Device,
			Count:     row.Count,
			CountRate: Rate(row.Count, total),
		}
		if detailed {
			device.OS = deref(row.OS)
			device.Client = deref(row.Client)
		}
		devices = append(devices, device)
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Count > devices[j].Count
	})

	return truncate(devices, limit)
}

// countryCode reads the lowercased country code from a stored geo IP lookup.
// Anything that is not a JSON object yields an empty code.
func countryCode(geoIP *json.RawMessage) string {
	if geoIP == nil || len(*geoIP) == 0 {
		return ""
	}

	var geo struct {
		CountryCode string `json:"countryCode"`
	}
	if err := json.Unmarshal(*geoIP, &geo); err != nil {
		return ""
	}

	return strings.ToLower(geo.CountryCode)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
