package analytics

import (
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// ChartData is interaction activity of one target bucketed by interval.
// Activity maps a kind to bucket epoch seconds to the number of contacts whose
// first occurrence fell in that bucket.
type ChartData struct {
	StartDateTime   *time.Time                         `json:"startDateTime"`
	Interval        Interval                           `json:"interval"`
	Format          string                             `json:"format"`
	Interactions    []interaction.Kind                 `json:"interactions"`
	Activity        map[interaction.Kind]map[int64]int `json:"activity"`
	LastInteraction *time.Time                         `json:"lastInteraction"`
}

// Empty reports whether no interaction fell inside the chart window.
func (c *ChartData) Empty() bool {
	return len(c.Activity) == 0
}

// ActivityEvent is one interaction of a contact with a target.
type ActivityEvent struct {
	ContactID   int64                  `json:"contactId"`
	TargetType  interaction.TargetType `json:"targetType"`
	TargetID    int64                  `json:"targetId"`
	Interaction interaction.Kind       `json:"interaction"`
	Date        time.Time              `json:"date"`
	Count       int                    `json:"count"`
	SourceType  interaction.SourceType `json:"sourceType,omitempty"`
	Source      string                 `json:"source,omitempty"`
	SourceURL   string                 `json:"sourceUrl,omitempty"`
	Links       []interaction.Link     `json:"links"`

	kindIndex int
}

type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Count       int    `json:"count"`
	CountRate   int    `json:"countRate"`
}

type Device struct {
	Device    string `json:"device"`
	OS        string `json:"os,omitempty"`
	Client    string `json:"client,omitempty"`
	Count     int    `json:"count"`
	CountRate int    `json:"countRate"`
}
