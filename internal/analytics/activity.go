package analytics

import (
	"sort"
	"strings"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// SourceLinker builds control panel URLs for the source a contact came from.
type SourceLinker struct {
	BaseURL string
	// UserProfiles is set when the installation has a profile page per user.
	// Without it every user source points to the current account.
	UserProfiles bool
}

func (l SourceLinker) cpURL(path string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/" + path
}

// URL returns where the source of a record points to. Sources other than
// imports and users are already URLs.
func (l SourceLinker) URL(sourceType interaction.SourceType, source string) string {
	switch sourceType {
	case interaction.SourceNone:
		return ""
	case interaction.SourceImport:
		return l.cpURL("campaign/contacts/import/" + source)
	case interaction.SourceUser:
		if l.UserProfiles && source != "" {
			return l.cpURL("users/" + source)
		}
		return l.cpURL("myaccount")
	default:
		return source
	}
}

// FeedOptions narrows an activity feed.
type FeedOptions struct {
	// Kind restricts the feed to one interaction. Without it, or for records
	// whose target type does not support it, the feed covers the target
	// type's activity kinds.
	Kind interaction.Kind
	// Limit caps the feed after sorting; <= 0 keeps every event.
	Limit int
	// Links holds the links each contact clicked, per target.
	Links map[interaction.ContactKey][]interaction.Link
}

// BuildActivity expands records into one event per occurred interaction,
// newest first. Events at the same second are ordered by kind enumeration
// index, kind name, contact id and target id, all descending.
func BuildActivity(records []interaction.Record, opts FeedOptions, linker SourceLinker) []ActivityEvent {
	events := make([]ActivityEvent, 0, len(records))

	for i := range records {
		record := &records[i]

		kinds := record.TargetType.ActivityKinds()
		if opts.Kind != "" && record.TargetType.Supports(opts.Kind) {
			kinds = []interaction.Kind{opts.Kind}
		}

		for _, kind := range kinds {
			at := record.At(kind)
			if at == nil {
				continue
			}

			event := ActivityEvent{
				ContactID:   record.ContactID,
				TargetType:  record.TargetType,
				TargetID:    record.TargetID,
				Interaction: kind,
				Date:        *at,
				Count:       record.Occurrences(kind),
				SourceType:  record.SourceType,
				Source:      record.Source,
				SourceURL:   linker.URL(record.SourceType, record.Source),
				Links:       []interaction.Link{},
				kindIndex:   record.TargetType.KindIndex(kind),
			}
			if kind == interaction.KindClicked {
				if links := opts.Links[record.Key()]; links != nil {
					event.Links = links
				}
			}

			events = append(events, event)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return newerEvent(&events[i], &events[j])
	})

	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}

	return events
}

func newerEvent(a, b *ActivityEvent) bool {
	if at, bt := a.Date.Unix(), b.Date.Unix(); at != bt {
		return at > bt
	}
	if a.kindIndex != b.kindIndex {
		return a.kindIndex > b.kindIndex
	}
	if a.Interaction != b.Interaction {
		return a.Interaction > b.Interaction
	}
	if a.ContactID != b.ContactID {
		return a.ContactID > b.ContactID
	}
	return a.TargetID > b.TargetID
}
