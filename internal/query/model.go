package query

import (
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

type CampaignsReport struct {
	Campaigns        []interaction.Campaign `json:"campaigns"`
	Recipients       int                    `json:"recipients"`
	Opened           int                    `json:"opened"`
	Clicked          int                    `json:"clicked"`
	ClickThroughRate int                    `json:"clickThroughRate"`
	Sendouts         int                    `json:"sendouts"`
}

// CampaignReport describes one campaign. Campaign is nil when it does not
// exist.
type CampaignReport struct {
	Campaign      *interaction.Campaign `json:"campaign"`
	Sendouts      []interaction.Sendout `json:"sendouts"`
	DateFirstSent *time.Time            `json:"dateFirstSent"`
	HasChart      bool                  `json:"hasChart"`
}

// ContactsReport counts mailing list subscriptions per status.
type ContactsReport struct {
	Statuses map[interaction.Kind]int `json:"statuses"`
	Total    int                      `json:"total"`
}

type MailingListsReport struct {
	MailingLists []interaction.MailingList `json:"mailingLists"`
	Subscribed   int                       `json:"subscribed"`
	Unsubscribed int                       `json:"unsubscribed"`
	Complained   int                       `json:"complained"`
	Bounced      int                       `json:"bounced"`
}

// MailingListReport describes one mailing list. MailingList is nil when it
// does not exist.
type MailingListReport struct {
	MailingList *interaction.MailingList `json:"mailingList"`
	Sendouts    []interaction.Sendout    `json:"sendouts"`
	HasChart    bool                     `json:"hasChart"`
}
