package interaction

import (
	"encoding/json"
	"time"
)

// Kind is an interaction a contact can have with a campaign or a mailing list.
type Kind string

const (
	KindSent         Kind = "sent"
	KindOpened       Kind = "opened"
	KindClicked      Kind = "clicked"
	KindSubscribed   Kind = "subscribed"
	KindUnsubscribed Kind = "unsubscribed"
	KindComplained   Kind = "complained"
	KindBounced      Kind = "bounced"
	KindVerified     Kind = "verified"
)

type TargetType string

const (
	TargetCampaign    TargetType = "campaign"
	TargetMailingList TargetType = "mailing-list"
)

var (
	campaignKinds    = []Kind{KindSent, KindOpened, KindClicked, KindUnsubscribed, KindComplained, KindBounced}
	mailingListKinds = []Kind{KindSubscribed, KindUnsubscribed, KindComplained, KindBounced, KindVerified}

	// Being sent a campaign and verifying an address are not contact activity.
	campaignActivityKinds    = []Kind{KindOpened, KindClicked, KindUnsubscribed, KindComplained, KindBounced}
	mailingListActivityKinds = []Kind{KindSubscribed, KindUnsubscribed, KindComplained, KindBounced}
)

// Kinds returns the interactions recorded against the target type, in
// enumeration order. The returned slice is a copy.
func (t TargetType) Kinds() []Kind {
	switch t {
	case TargetCampaign:
		return append([]Kind(nil), campaignKinds...)
	case TargetMailingList:
		return append([]Kind(nil), mailingListKinds...)
	default:
		return nil
	}
}

// ActivityKinds returns the kinds that feeds and charts report when no single
// kind is requested, in enumeration order. The returned slice is a copy.
func (t TargetType) ActivityKinds() []Kind {
	switch t {
	case TargetCampaign:
		return append([]Kind(nil), campaignActivityKinds...)
	case TargetMailingList:
		return append([]Kind(nil), mailingListActivityKinds...)
	default:
		return nil
	}
}

// KindIndex returns the position of k in the target type's enumeration, or -1.
func (t TargetType) KindIndex(k Kind) int {
	for i, kind := range t.Kinds() {
		if kind == k {
			return i
		}
	}
	return -1
}

func (t TargetType) Supports(k Kind) bool {
	return t.KindIndex(k) >= 0
}

func (t TargetType) Validate() error {
	switch t {
	case TargetCampaign, TargetMailingList:
		return nil
	default:
		return ErrInvalidTargetType
	}
}

// ParseKind validates s against the kinds of the given target type. An empty
// string is valid and means "any kind".
func ParseKind(t TargetType, s string) (Kind, error) {
	if s == "" {
		return "", nil
	}
	k := Kind(s)
	if !t.Supports(k) {
		return "", ErrInvalidKind
	}
	return k, nil
}

type SourceType string

const (
	SourceNone   SourceType = ""
	SourceImport SourceType = "import"
	SourceUser   SourceType = "user"
	SourceForm   SourceType = "form"
	SourceAPI    SourceType = "api"
)

// Record is one row of interactions between a contact and a target. A nil
// timestamp means the interaction has not happened yet; a non-nil one holds
// the time of its first occurrence.
type Record struct {
	ContactID  int64      `db:"contact_id" json:"contactId"`
	TargetID   int64      `db:"target_id" json:"targetId"`
	TargetType TargetType `db:"-" json:"targetType"`
	SendoutID  *int64     `db:"sendout_id" json:"sendoutId,omitempty"`

	SubscriptionStatus string `db:"subscription_status" json:"subscriptionStatus,omitempty"`

	Sent         *time.Time `db:"sent" json:"sent,omitempty"`
	Opened       *time.Time `db:"opened" json:"opened,omitempty"`
	Clicked      *time.Time `db:"clicked" json:"clicked,omitempty"`
	Subscribed   *time.Time `db:"subscribed" json:"subscribed,omitempty"`
	Unsubscribed *time.Time `db:"unsubscribed" json:"unsubscribed,omitempty"`
	Complained   *time.Time `db:"complained" json:"complained,omitempty"`
	Bounced      *time.Time `db:"bounced" json:"bounced,omitempty"`
	Verified     *time.Time `db:"verified" json:"verified,omitempty"`

	SourceType SourceType `db:"source_type" json:"sourceType"`
	Source     string     `db:"source" json:"source"`
	Opens      int        `db:"opens" json:"opens"`
	Clicks     int        `db:"clicks" json:"clicks"`

	DateCreated time.Time `db:"date_created" json:"dateCreated"`
	DateUpdated time.Time `db:"date_updated" json:"dateUpdated"`
}

// At returns the first-occurrence time of k, or nil when it has not happened
// or does not apply to the record's target type.
func (r *Record) At(k Kind) *time.Time {
	switch k {
	case KindSent:
		return r.Sent
	case KindOpened:
		return r.Opened
	case KindClicked:
		return r.Clicked
	case KindSubscribed:
		return r.Subscribed
	case KindUnsubscribed:
		return r.Unsubscribed
	case KindComplained:
		return r.Complained
	case KindBounced:
		return r.Bounced
	case KindVerified:
		return r.Verified
	default:
		return nil
	}
}

// Occurrences returns how many times k happened: the cumulative counter for
// repeatable kinds, 1 for the rest.
func (r *Record) Occurrences(k Kind) int {
	switch k {
	case KindOpened:
		return r.Opens
	case KindClicked:
		return r.Clicks
	default:
		return 1
	}
}

// Contact holds the attributes of a contact that reports read.
type Contact struct {
	ID           int64            `db:"id" json:"id"`
	Email        string           `db:"email" json:"email"`
	Country      string           `db:"country" json:"country"`
	GeoIP        *json.RawMessage `db:"geo_ip" json:"geoIp,omitempty"`
	Device       *string          `db:"device" json:"device,omitempty"`
	OS           *string          `db:"os" json:"os,omitempty"`
	Client       *string          `db:"client" json:"client,omitempty"`
	LastActivity *time.Time       `db:"last_activity" json:"lastActivity,omitempty"`
	Complained   *time.Time       `db:"complained" json:"complained,omitempty"`
	Bounced      *time.Time       `db:"bounced" json:"bounced,omitempty"`
}

// CountryCount is one row of contacts grouped by country.
type CountryCount struct {
	Country string           `db:"country"`
	GeoIP   *json.RawMessage `db:"geo_ip"`
	Count   int              `db:"count"`
}

// DeviceCount is one row of contacts grouped by device, and by os and client
// when detailed.
type DeviceCount struct {
	Device string  `db:"device"`
	OS     *string `db:"os"`
	Client *string `db:"client"`
	Count  int     `db:"count"`
}

type Campaign struct {
	ID         int64      `db:"id" json:"id"`
	SiteID     int64      `db:"site_id" json:"siteId"`
	Title      string     `db:"title" json:"title"`
	Status     string     `db:"status" json:"status"`
	Recipients int        `db:"recipients" json:"recipients"`
	Opened     int        `db:"opened" json:"opened"`
	Clicked    int        `db:"clicked" json:"clicked"`
	Opens      int        `db:"opens" json:"opens"`
	Clicks     int        `db:"clicks" json:"clicks"`
	LastSent   *time.Time `db:"last_sent" json:"lastSent,omitempty"`
}

// MailingList carries the subscription counts of a list alongside its metadata.
type MailingList struct {
	ID           int64  `db:"id" json:"id"`
	SiteID       int64  `db:"site_id" json:"siteId"`
	Title        string `db:"title" json:"title"`
	Subscribed   int    `db:"subscribed" json:"subscribed"`
	Unsubscribed int    `db:"unsubscribed" json:"unsubscribed"`
	Complained   int    `db:"complained" json:"complained"`
	Bounced      int    `db:"bounced" json:"bounced"`
}

type Sendout struct {
	ID         int64      `db:"id" json:"id"`
	SiteID     int64      `db:"site_id" json:"siteId"`
	CampaignID int64      `db:"campaign_id" json:"campaignId"`
	Title      string     `db:"title" json:"title"`
	Status     string     `db:"status" json:"status"`
	SendDate   *time.Time `db:"send_date" json:"sendDate,omitempty"`
	Recipients int        `db:"recipients" json:"recipients"`
}

// Link is a tracked link of a campaign.
type Link struct {
	ID         int64      `db:"id" json:"id"`
	CampaignID int64      `db:"campaign_id" json:"campaignId"`
	URL        string     `db:"url" json:"url"`
	Title      string     `db:"title" json:"title"`
	Clicked    int        `db:"clicked" json:"clicked"`
	Clicks     int        `db:"clicks" json:"clicks"`
	LastClick  *time.Time `db:"last_click" json:"lastClick,omitempty"`
}
