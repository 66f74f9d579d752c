package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/analytics"
	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"github.com/Wuchinator/campaign-reports/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCampaignInterval    = analytics.IntervalHours
	DefaultMailingListInterval = analytics.IntervalDays
)

// Service answers report queries. Missing campaigns and mailing lists yield
// empty reports; only store failures are returned as errors.
type Service struct {
	campaignRecords    analytics.TargetInteractionSource
	mailingListRecords analytics.TargetInteractionSource
	campaigns          CampaignLookup
	mailingLists       MailingListLookup
	sendouts           SendoutLookup
	contacts           ContactLookup
	linker             analytics.SourceLinker
	logger             *zap.Logger
}

func NewService(deps Dependencies, linker analytics.SourceLinker, logger *zap.Logger) *Service {
	return &Service{
		campaignRecords:    deps.CampaignRecords,
		mailingListRecords: deps.MailingListRecords,
		campaigns:          deps.Campaigns,
		mailingLists:       deps.MailingLists,
		sendouts:           deps.Sendouts,
		contacts:           deps.Contacts,
		linker:             linker,
		logger:             logger,
	}
}

// CampaignsReport sums the results of every sent campaign of a site, or of all
// sites when siteID is nil.
func (s *Service) CampaignsReport(ctx context.Context, siteID *int64) (*CampaignsReport, error) {
	campaigns, err := s.campaigns.SentCampaigns(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sent campaigns: %w", err)
	}

	report := &CampaignsReport{Campaigns: nonNil(campaigns)}
	for _, c := range campaigns {
		report.Recipients += c.Recipients
		report.Opened += c.Opened
		report.Clicked += c.Clicked
	}
	report.ClickThroughRate = analytics.Rate(report.Clicked, report.Opened)

	report.Sendouts, err = s.sendouts.CountSendouts(ctx, interaction.SendoutFilter{SiteID: siteID})
	if err != nil {
		return nil, fmt.Errorf("failed to count sendouts: %w", err)
	}

	s.logger.Debug("Campaigns report computed",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("click_through_rate", report.ClickThroughRate),
	)

	return report, nil
}

func (s *Service) CampaignReport(ctx context.Context, campaignID int64) (*CampaignReport, error) {
	report := &CampaignReport{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		campaign, err := s.campaign(gctx, campaignID)
		report.Campaign = campaign
		return err
	})
	g.Go(func() error {
		sendouts, err := s.sendouts.Sendouts(gctx, interaction.SendoutFilter{CampaignID: &campaignID})
		if err != nil {
			return fmt.Errorf("failed to get sendouts: %w", err)
		}
		report.Sendouts = nonNil(sendouts)
		return nil
	})
	g.Go(func() error {
		first, err := s.campaignRecords.Earliest(gctx, interaction.ForTarget(campaignID))
		if errors.Is(err, interaction.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get first recipient: %w", err)
		}
		sent := first.DateCreated
		report.DateFirstSent = &sent
		return nil
	})
	g.Go(func() error {
		opened, err := s.CampaignContactActivity(gctx, campaignID, interaction.KindOpened, 1)
		report.HasChart = len(opened) > 0
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return report, nil
}

// CampaignChart charts a campaign's interactions. An empty interval defaults
// to hours.
func (s *Service) CampaignChart(ctx context.Context, campaignID int64, interval string) (*analytics.ChartData, error) {
	if interval == "" {
		interval = string(DefaultCampaignInterval)
	}
	return s.chart(ctx, s.campaignRecords, campaignID, interval)
}

// CampaignRecipients lists a campaign's recipients, most recently sent first.
func (s *Service) CampaignRecipients(
	ctx context.Context,
	campaignID int64,
	sendoutID *int64,
	limit int,
) ([]interaction.Record, error) {
	f := interaction.ForTarget(campaignID)
	f.SendoutID = sendoutID

	records, err := s.campaignRecords.Find(ctx, f, interaction.OrderSentDesc, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign recipients: %w", err)
	}
	return nonNil(records), nil
}

// CampaignContactActivity lists what contacts did with a campaign. An empty
// kind covers the campaign activity kinds, which exclude sending.
func (s *Service) CampaignContactActivity(
	ctx context.Context,
	campaignID int64,
	kind interaction.Kind,
	limit int,
) ([]analytics.ActivityEvent, error) {
	f := activityFilter(interaction.TargetCampaign, kind)
	f.TargetIDs = []int64{campaignID}
	return s.activity(ctx, s.campaignRecords, f, kind, limit)
}

func (s *Service) CampaignLinks(ctx context.Context, campaignID int64, limit int) ([]interaction.Link, error) {
	links, err := s.campaigns.Links(ctx, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign links: %w", err)
	}
	return nonNil(links), nil
}

// CampaignLocations ranks the countries of contacts who opened a campaign.
func (s *Service) CampaignLocations(ctx context.Context, campaignID int64, limit int) ([]analytics.Location, error) {
	campaign, err := s.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return []analytics.Location{}, nil
	}

	scope, err := s.scope(ctx, s.campaignRecords, campaignID, interaction.KindOpened)
	if err != nil {
		return nil, err
	}
	return s.locations(ctx, scope, campaign.Opened, limit)
}

// CampaignDevices ranks the devices of contacts who opened a campaign.
func (s *Service) CampaignDevices(ctx context.Context, campaignID int64, detailed bool, limit int) ([]analytics.Device, error) {
	campaign, err := s.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return []analytics.Device{}, nil
	}

	scope, err := s.scope(ctx, s.campaignRecords, campaignID, interaction.KindOpened)
	if err != nil {
		return nil, err
	}
	return s.devices(ctx, scope, detailed, campaign.Opened, limit)
}

// ContactsReport counts mailing list subscriptions by their current status.
func (s *Service) ContactsReport(ctx context.Context) (*ContactsReport, error) {
	report := &ContactsReport{Statuses: make(map[interaction.Kind]int)}

	for _, kind := range interaction.TargetMailingList.Kinds() {
		count, err := s.mailingListRecords.Count(ctx, interaction.Filter{SubscriptionStatus: string(kind)})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s subscriptions: %w", kind, err)
		}
		report.Statuses[kind] = count
	}

	total, err := s.mailingListRecords.Count(ctx, interaction.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	report.Total = total

	return report, nil
}

// ContactsActivity lists the most recently active contacts.
func (s *Service) ContactsActivity(ctx context.Context, limit int) ([]interaction.Contact, error) {
	contacts, err := s.contacts.RecentlyActive(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recently active contacts: %w", err)
	}
	return nonNil(contacts), nil
}

// ContactsLocations ranks all contacts by country against the number of
// contacts that neither complained nor bounced.
func (s *Service) ContactsLocations(ctx context.Context, limit int) ([]analytics.Location, error) {
	total, err := s.contacts.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active contacts: %w", err)
	}
	return s.locations(ctx, interaction.AllContacts(), total, limit)
}

func (s *Service) ContactsDevices(ctx context.Context, detailed bool, limit int) ([]analytics.Device, error) {
	total, err := s.contacts.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active contacts: %w", err)
	}
	return s.devices(ctx, interaction.AllContacts(), detailed, total, limit)
}

// ContactCampaignActivity lists what a contact did with campaigns, optionally
// only the given ones.
func (s *Service) ContactCampaignActivity(
	ctx context.Context,
	contactID int64,
	limit int,
	campaignIDs ...int64,
) ([]analytics.ActivityEvent, error) {
	f := interaction.ForContact(contactID, campaignIDs...)
	f.AnyNotNull = interaction.TargetCampaign.ActivityKinds()
	return s.activity(ctx, s.campaignRecords, f, "", limit)
}

// ContactMailingListActivity lists what a contact did with mailing lists,
// optionally only the given ones.
func (s *Service) ContactMailingListActivity(
	ctx context.Context,
	contactID int64,
	limit int,
	mailingListIDs ...int64,
) ([]analytics.ActivityEvent, error) {
	f := interaction.ForContact(contactID, mailingListIDs...)
	f.AnyNotNull = interaction.TargetMailingList.ActivityKinds()
	return s.activity(ctx, s.mailingListRecords, f, "", limit)
}

// MailingListsReport sums the subscriptions of every mailing list of a site,
// or of all sites when siteID is nil.
func (s *Service) MailingListsReport(ctx context.Context, siteID *int64) (*MailingListsReport, error) {
	lists, err := s.mailingLists.MailingLists(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailing lists: %w", err)
	}

	report := &MailingListsReport{MailingLists: nonNil(lists)}
	for _, l := range lists {
		report.Subscribed += l.Subscribed
		report.Unsubscribed += l.Unsubscribed
		report.Complained += l.Complained
		report.Bounced += l.Bounced
	}

	return report, nil
}

func (s *Service) MailingListReport(ctx context.Context, mailingListID int64) (*MailingListReport, error) {
	report := &MailingListReport{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := s.mailingList(gctx, mailingListID)
		report.MailingList = list
		return err
	})
	g.Go(func() error {
		sendouts, err := s.sendouts.Sendouts(gctx, interaction.SendoutFilter{MailingListID: &mailingListID})
		if err != nil {
			return fmt.Errorf("failed to get sendouts: %w", err)
		}
		report.Sendouts = nonNil(sendouts)
		return nil
	})
	g.Go(func() error {
		_, err := s.mailingListRecords.Earliest(gctx, interaction.ForTarget(mailingListID))
		if errors.Is(err, interaction.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get first subscription: %w", err)
		}
		report.HasChart = true
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return report, nil
}

// MailingListChart charts a mailing list's interactions. An empty interval
// defaults to days.
func (s *Service) MailingListChart(ctx context.Context, mailingListID int64, interval string) (*analytics.ChartData, error) {
	if interval == "" {
		interval = string(DefaultMailingListInterval)
	}
	return s.chart(ctx, s.mailingListRecords, mailingListID, interval)
}

// MailingListContactActivity lists what contacts did with a mailing list. An
// empty kind covers the mailing list activity kinds, which exclude
// verification.
func (s *Service) MailingListContactActivity(
	ctx context.Context,
	mailingListID int64,
	kind interaction.Kind,
	limit int,
) ([]analytics.ActivityEvent, error) {
	f := activityFilter(interaction.TargetMailingList, kind)
	f.TargetIDs = []int64{mailingListID}
	return s.activity(ctx, s.mailingListRecords, f, kind, limit)
}

// MailingListLocations ranks the countries of contacts who subscribed to a
// mailing list.
func (s *Service) MailingListLocations(ctx context.Context, mailingListID int64, limit int) ([]analytics.Location, error) {
	list, err := s.mailingList(ctx, mailingListID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return []analytics.Location{}, nil
	}

	scope, err := s.scope(ctx, s.mailingListRecords, mailingListID, interaction.KindSubscribed)
	if err != nil {
		return nil, err
	}
	return s.locations(ctx, scope, list.Subscribed, limit)
}

func (s *Service) MailingListDevices(ctx context.Context, mailingListID int64, detailed bool, limit int) ([]analytics.Device, error) {
	list, err := s.mailingList(ctx, mailingListID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return []analytics.Device{}, nil
	}

	scope, err := s.scope(ctx, s.mailingListRecords, mailingListID, interaction.KindSubscribed)
	if err != nil {
		return nil, err
	}
	return s.devices(ctx, scope, detailed, list.Subscribed, limit)
}

// campaign returns nil without error when the campaign does not exist.
func (s *Service) campaign(ctx context.Context, id int64) (*interaction.Campaign, error) {
	campaign, err := s.campaigns.CampaignByID(ctx, id)
	if errors.Is(err, interaction.ErrNotFound) {
		s.logger.Debug("Campaign not found", zap.Int64("campaign_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// mailingList returns nil without error when the mailing list does not exist.
func (s *Service) mailingList(ctx context.Context, id int64) (*interaction.MailingList, error) {
	list, err := s.mailingLists.MailingListByID(ctx, id)
	if errors.Is(err, interaction.ErrNotFound) {
		s.logger.Debug("Mailing list not found", zap.Int64("mailing_list_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailing list: %w", err)
	}
	return list, nil
}

func (s *Service) chart(
	ctx context.Context,
	src analytics.TargetInteractionSource,
	targetID int64,
	interval string,
) (*analytics.ChartData, error) {
	start := time.Now()
	log := logger.WithTarget(s.logger, string(src.TargetType()), targetID)

	chart, err := analytics.BuildChart(ctx, src, interaction.ForTarget(targetID), interval)
	if err != nil {
		log.Error("Failed to build chart", zap.Error(err))
		return nil, fmt.Errorf("failed to build chart: %w", err)
	}

	log.Debug("Chart built",
		zap.String("interval", interval),
		zap.Bool("empty", chart.Empty()),
		zap.Int("interactions", len(chart.Activity)),
		zap.Duration("took", time.Since(start)),
	)

	return chart, nil
}

// activityFilter selects the records that yield at least one feed event for
// kind, or for any activity kind when kind is empty or unsupported.
func activityFilter(t interaction.TargetType, kind interaction.Kind) interaction.Filter {
	if kind != "" && t.Supports(kind) {
		return interaction.Filter{NotNull: []interaction.Kind{kind}}
	}
	return interaction.Filter{AnyNotNull: t.ActivityKinds()}
}

func (s *Service) activity(
	ctx context.Context,
	src analytics.TargetInteractionSource,
	f interaction.Filter,
	kind interaction.Kind,
	limit int,
) ([]analytics.ActivityEvent, error) {
	records, err := src.Find(ctx, f, interaction.OrderDateUpdatedDesc, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s records: %w", src.TargetType(), err)
	}

	opts := analytics.FeedOptions{Kind: kind, Limit: limit}

	if src.TargetType() == interaction.TargetCampaign && (kind == "" || kind == interaction.KindClicked) {
		var clicked []interaction.ContactKey
		for i := range records {
			if records[i].Clicked != nil {
				clicked = append(clicked, records[i].Key())
			}
		}
		if len(clicked) > 0 {
			opts.Links, err = s.campaigns.ClickedLinks(ctx, clicked)
			if err != nil {
				return nil, fmt.Errorf("failed to get clicked links: %w", err)
			}
		}
	}

	return analytics.BuildActivity(records, opts, s.linker), nil
}

// scope restricts contact aggregations to contacts whose record on the
// target has the given interaction.
func (s *Service) scope(
	ctx context.Context,
	src analytics.TargetInteractionSource,
	targetID int64,
	kind interaction.Kind,
) (interaction.ContactScope, error) {
	f := interaction.ForTarget(targetID)
	f.NotNull = []interaction.Kind{kind}

	ids, err := src.ContactIDs(ctx, f)
	if err != nil {
		return interaction.ContactScope{}, fmt.Errorf("failed to get %s contacts: %w", src.TargetType(), err)
	}
	return interaction.OnlyContacts(ids), nil
}

func (s *Service) locations(ctx context.Context, scope interaction.ContactScope, total, limit int) ([]analytics.Location, error) {
	locations, err := analytics.Locations(ctx, s.contacts, scope, total, limit)
	if err != nil {
		s.logger.Error("Failed to get locations", zap.Error(err))
		return nil, err
	}
	return locations, nil
}

func (s *Service) devices(ctx context.Context, scope interaction.ContactScope, detailed bool, total, limit int) ([]analytics.Device, error) {
	devices, err := analytics.Devices(ctx, s.contacts, scope, detailed, total, limit)
	if err != nil {
		s.logger.Error("Failed to get devices", zap.Error(err), zap.Bool("detailed", detailed))
		return nil, err
	}
	return devices, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
