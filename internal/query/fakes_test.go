package query

import (
	"context"
	"sort"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/analytics"
	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"go.uber.org/zap"
)

var testLinker = analytics.SourceLinker{BaseURL: "https://cp.example.com", UserProfiles: true}

type fakeRecords struct {
	targetType interaction.TargetType
	records    []interaction.Record
	err        error
}

func (s *fakeRecords) matches(f interaction.Filter, r interaction.Record) bool {
	if len(f.TargetIDs) > 0 {
		found := false
		for _, id := range f.TargetIDs {
			found = found || id == r.TargetID
		}
		if !found {
			return false
		}
	}
	if f.ContactID != 0 && f.ContactID != r.ContactID {
		return false
	}
	if f.SendoutID != nil && (r.SendoutID == nil || *r.SendoutID != *f.SendoutID) {
		return false
	}
	if f.SubscriptionStatus != "" && f.SubscriptionStatus != r.SubscriptionStatus {
		return false
	}
	for _, k := range f.NotNull {
		if r.At(k) == nil {
			return false
		}
	}
	if len(f.AnyNotNull) > 0 {
		found := false
		for _, k := range f.AnyNotNull {
			found = found || r.At(k) != nil
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *fakeRecords) filter(f interaction.Filter) []interaction.Record {
	var out []interaction.Record
	for _, r := range s.records {
		if s.matches(f, r) {
			r.TargetType = s.targetType
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeRecords) TargetType() interaction.TargetType { return s.targetType }

func (s *fakeRecords) Earliest(_ context.Context, f interaction.Filter) (*interaction.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	records := s.filter(f)
	if len(records) == 0 {
		return nil, interaction.ErrNotFound
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].DateCreated.Before(records[j].DateCreated) })
	return &records[0], nil
}

func (s *fakeRecords) FirstOccurrences(_ context.Context, f interaction.Filter, before time.Time) ([]interaction.Record, error) {
	var out []interaction.Record
	for _, r := range s.filter(f) {
		if r.DateCreated.Before(before) {
			out = append(out, r)
		}
	}
	return out, s.err
}

func (s *fakeRecords) Find(_ context.Context, f interaction.Filter, _ interaction.Order, limit int) ([]interaction.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	records := s.filter(f)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *fakeRecords) Count(_ context.Context, f interaction.Filter) (int, error) {
	return len(s.filter(f)), s.err
}

func (s *fakeRecords) ContactIDs(_ context.Context, f interaction.Filter) ([]int64, error) {
	var ids []int64
	for _, r := range s.filter(f) {
		ids = append(ids, r.ContactID)
	}
	return ids, s.err
}

type fakeCampaigns struct {
	campaigns map[int64]interaction.Campaign
	links     map[interaction.ContactKey][]interaction.Link
	err       error
	// onLinks runs inside Links, before the result is returned.
	onLinks func()
}

func (c *fakeCampaigns) CampaignByID(_ context.Context, id int64) (*interaction.Campaign, error) {
	if c.err != nil {
		return nil, c.err
	}
	campaign, ok := c.campaigns[id]
	if !ok {
		return nil, interaction.ErrNotFound
	}
	return &campaign, nil
}

func (c *fakeCampaigns) SentCampaigns(_ context.Context, siteID *int64) ([]interaction.Campaign, error) {
	var out []interaction.Campaign
	for _, campaign := range c.campaigns {
		if siteID == nil || campaign.SiteID == *siteID {
			out = append(out, campaign)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, c.err
}

func (c *fakeCampaigns) Links(_ context.Context, campaignID int64, limit int) ([]interaction.Link, error) {
	if c.onLinks != nil {
		c.onLinks()
	}
	var out []interaction.Link
	for _, links := range c.links {
		for _, l := range links {
			if l.CampaignID == campaignID {
				out = append(out, l)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, c.err
}

func (c *fakeCampaigns) ClickedLinks(_ context.Context, keys []interaction.ContactKey) (map[interaction.ContactKey][]interaction.Link, error) {
	out := make(map[interaction.ContactKey][]interaction.Link)
	for _, k := range keys {
		if links, ok := c.links[k]; ok {
			out[k] = links
		}
	}
	return out, c.err
}

type fakeMailingLists struct {
	lists map[int64]interaction.MailingList
}

func (m *fakeMailingLists) MailingListByID(_ context.Context, id int64) (*interaction.MailingList, error) {
	list, ok := m.lists[id]
	if !ok {
		return nil, interaction.ErrNotFound
	}
	return &list, nil
}

func (m *fakeMailingLists) MailingLists(_ context.Context, siteID *int64) ([]interaction.MailingList, error) {
	var out []interaction.MailingList
	for _, list := range m.lists {
		if siteID == nil || list.SiteID == *siteID {
			out = append(out, list)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeSendouts struct {
	sendouts []interaction.Sendout
}

func (s *fakeSendouts) Sendouts(_ context.Context, f interaction.SendoutFilter) ([]interaction.Sendout, error) {
	var out []interaction.Sendout
	for _, sendout := range s.sendouts {
		if f.CampaignID != nil && sendout.CampaignID != *f.CampaignID {
			continue
		}
		if f.SiteID != nil && sendout.SiteID != *f.SiteID {
			continue
		}
		out = append(out, sendout)
	}
	return out, nil
}

func (s *fakeSendouts) CountSendouts(ctx context.Context, f interaction.SendoutFilter) (int, error) {
	sendouts, err := s.Sendouts(ctx, f)
	return len(sendouts), err
}

type fakeContacts struct {
	countries []interaction.CountryCount
	devices   []interaction.DeviceCount
	active    int
	recent    []interaction.Contact

	scope interaction.ContactScope
}

func (c *fakeContacts) CountryCounts(_ context.Context, scope interaction.ContactScope) ([]interaction.CountryCount, error) {
	c.scope = scope
	if scope.Empty() {
		return nil, nil
	}
	return c.countries, nil
}

func (c *fakeContacts) DeviceCounts(_ context.Context, scope interaction.ContactScope, _ bool) ([]interaction.DeviceCount, error) {
	c.scope = scope
	if scope.Empty() {
		return nil, nil
	}
	return c.devices, nil
}

func (c *fakeContacts) CountActive(context.Context) (int, error) {
	return c.active, nil
}

func (c *fakeContacts) RecentlyActive(_ context.Context, limit int) ([]interaction.Contact, error) {
	if limit > 0 && len(c.recent) > limit {
		return c.recent[:limit], nil
	}
	return c.recent, nil
}

type fixture struct {
	campaignRecords    *fakeRecords
	mailingListRecords *fakeRecords
	campaigns          *fakeCampaigns
	mailingLists       *fakeMailingLists
	sendouts           *fakeSendouts
	contacts           *fakeContacts
}

var (
	sentAt = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	site   = int64(1)
)

func ts(offset time.Duration) *time.Time {
	t := sentAt.Add(offset)
	return &t
}

// newFixture holds campaign 1 (three recipients, two opens, one click) and
// mailing list 5 (two subscribers, one of whom unsubscribed).
func newFixture() *fixture {
	link := interaction.Link{ID: 50, CampaignID: 1, URL: "https://example.com/offer", Clicked: 1, Clicks: 2}

	return &fixture{
		campaignRecords: &fakeRecords{
			targetType: interaction.TargetCampaign,
			records: []interaction.Record{
				{ContactID: 1, TargetID: 1, DateCreated: sentAt, Sent: ts(0), Opened: ts(time.Hour), Opens: 3},
				{ContactID: 2, TargetID: 1, DateCreated: sentAt, Sent: ts(0), Opened: ts(2 * time.Hour), Clicked: ts(2 * time.Hour), Opens: 1, Clicks: 2},
				{ContactID: 3, TargetID: 1, DateCreated: sentAt, Sent: ts(0)},
				{ContactID: 1, TargetID: 2, DateCreated: sentAt.Add(48 * time.Hour), Sent: ts(48 * time.Hour)},
			},
		},
		mailingListRecords: &fakeRecords{
			targetType: interaction.TargetMailingList,
			records: []interaction.Record{
				{ContactID: 1, TargetID: 5, DateCreated: sentAt, Subscribed: ts(-time.Hour), SubscriptionStatus: "subscribed"},
				{ContactID: 2, TargetID: 5, DateCreated: sentAt, Subscribed: ts(-time.Hour), Unsubscribed: ts(time.Hour), SubscriptionStatus: "unsubscribed",
					SourceType: interaction.SourceImport, Source: "7"},
			},
		},
		campaigns: &fakeCampaigns{
			campaigns: map[int64]interaction.Campaign{
				1: {ID: 1, SiteID: site, Title: "Spring", Status: "sent", Recipients: 3, Opened: 2, Clicked: 1},
				2: {ID: 2, SiteID: site, Title: "Summer", Status: "sent", Recipients: 1},
			},
			links: map[interaction.ContactKey][]interaction.Link{
				{ContactID: 2, TargetID: 1}: {link},
			},
		},
		mailingLists: &fakeMailingLists{
			lists: map[int64]interaction.MailingList{
				5: {ID: 5, SiteID: site, Title: "Newsletter", Subscribed: 1, Unsubscribed: 1},
				6: {ID: 6, SiteID: site, Title: "Offers", Subscribed: 4, Bounced: 2},
			},
		},
		sendouts: &fakeSendouts{
			sendouts: []interaction.Sendout{
				{ID: 10, SiteID: site, CampaignID: 1, SendDate: ts(0), Recipients: 3},
				{ID: 11, SiteID: site, CampaignID: 2, SendDate: ts(48 * time.Hour), Recipients: 1},
			},
		},
		contacts: &fakeContacts{
			countries: []interaction.CountryCount{{Country: "Germany", Count: 1}, {Country: "", Count: 1}},
			devices:   []interaction.DeviceCount{{Device: "mobile", Count: 2}},
			active:    4,
		},
	}
}

func (f *fixture) service() *Service {
	return f.serviceWithLogger(zap.NewNop())
}

func (f *fixture) serviceWithLogger(logger *zap.Logger) *Service {
	return NewService(Dependencies{
		CampaignRecords:    f.campaignRecords,
		MailingListRecords: f.mailingListRecords,
		Campaigns:          f.campaigns,
		MailingLists:       f.mailingLists,
		Sendouts:           f.sendouts,
		Contacts:           f.contacts,
	}, testLinker, logger)
}
