package query

import (
	"context"

	"github.com/Wuchinator/campaign-reports/internal/analytics"
	"github.com/Wuchinator/campaign-reports/internal/interaction"
)

// Lookups used by the reports service. The interaction package provides
// Postgres implementations of each.

type CampaignLookup interface {
	CampaignByID(ctx context.Context, id int64) (*interaction.Campaign, error)
	SentCampaigns(ctx context.Context, siteID *int64) ([]interaction.Campaign, error)
	Links(ctx context.Context, campaignID int64, limit int) ([]interaction.Link, error)
	ClickedLinks(ctx context.Context, keys []interaction.ContactKey) (map[interaction.ContactKey][]interaction.Link, error)
}

type MailingListLookup interface {
	MailingListByID(ctx context.Context, id int64) (*interaction.MailingList, error)
	MailingLists(ctx context.Context, siteID *int64) ([]interaction.MailingList, error)
}

type SendoutLookup interface {
	Sendouts(ctx context.Context, f interaction.SendoutFilter) ([]interaction.Sendout, error)
	CountSendouts(ctx context.Context, f interaction.SendoutFilter) (int, error)
}

type ContactLookup interface {
	analytics.ContactSource
	CountActive(ctx context.Context) (int, error)
	RecentlyActive(ctx context.Context, limit int) ([]interaction.Contact, error)
}

// Dependencies wires the reports service to its stores.
type Dependencies struct {
	CampaignRecords    analytics.TargetInteractionSource
	MailingListRecords analytics.TargetInteractionSource
	Campaigns          CampaignLookup
	MailingLists       MailingListLookup
	Sendouts           SendoutLookup
	Contacts           ContactLookup
}
