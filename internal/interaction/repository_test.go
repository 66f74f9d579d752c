package interaction

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	return db, mock
}

var campaignRecordColumns = []string{
	"contact_id", "target_id", "sendout_id",
	"sent", "opened", "clicked", "unsubscribed", "complained", "bounced",
	"opens", "clicks", "date_created", "date_updated",
}

func TestRecordTable_Where(t *testing.T) {
	sendout := int64(9)
	where, args := campaignTable.where(Filter{
		TargetIDs:          []int64{1, 2},
		ContactID:          3,
		SendoutID:          &sendout,
		NotNull:            []Kind{KindOpened, KindSubscribed},
		AnyNotNull:         []Kind{KindClicked, KindBounced},
		SubscriptionStatus: "subscribed",
	})

	assert.Equal(t,
		" WHERE campaign_id = ANY(?) AND contact_id = ? AND sendout_id = ? AND opened IS NOT NULL"+
			" AND (clicked IS NOT NULL OR bounced IS NOT NULL)",
		where)
	assert.Equal(t, []any{pq.Array([]int64{1, 2}), int64(3), int64(9)}, args)

	where, args = mailingListTable.where(Filter{SubscriptionStatus: "bounced", SendoutID: &sendout})
	assert.Equal(t, " WHERE subscription_status = ?", where)
	assert.Equal(t, []any{"bounced"}, args)

	where, args = mailingListTable.where(Filter{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestRecordTable_Columns(t *testing.T) {
	assert.Equal(t, []string{
		"contact_id", "mailing_list_id AS target_id",
		"COALESCE(subscription_status, '') AS subscription_status",
		"COALESCE(source_type, '') AS source_type",
		"COALESCE(source, '') AS source",
		"subscribed", "unsubscribed", "complained", "bounced", "verified",
		"date_created", "date_updated",
	}, mailingListTable.columns())

	cols := campaignTable.firstOccurrenceColumns()
	assert.Contains(t, cols, "MIN(opened) AS opened")
	assert.Contains(t, cols, "MAX(opens) AS opens")
	assert.Contains(t, cols, "MIN(sendout_id) AS sendout_id")
}

func TestRecordRepository_EarliestNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRecordRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM contact_campaigns WHERE campaign_id = ANY($1) ORDER BY date_created ASC LIMIT 1")).
		WithArgs(pq.Array([]int64{7})).
		WillReturnRows(sqlmock.NewRows(campaignRecordColumns))

	record, err := repo.Earliest(context.Background(), ForTarget(7))
	assert.Nil(t, record)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRepository_Earliest(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRecordRepository(db, zap.NewNop())
	created := time.Date(2024, time.April, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT contact_id, campaign_id AS target_id").
		WithArgs(pq.Array([]int64{7})).
		WillReturnRows(sqlmock.NewRows(campaignRecordColumns).
			AddRow(11, 7, nil, created, nil, nil, nil, nil, nil, 0, 0, created, created))

	record, err := repo.Earliest(context.Background(), ForTarget(7))
	require.NoError(t, err)
	assert.Equal(t, int64(11), record.ContactID)
	assert.Equal(t, TargetCampaign, record.TargetType)
	assert.Equal(t, created, record.DateCreated)
	assert.Nil(t, record.Opened)
}

func TestRecordRepository_EarliestStoreError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRecordRepository(db, zap.NewNop())

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err := repo.Earliest(context.Background(), Filter{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "failed to get earliest record")
}

func TestRecordRepository_FirstOccurrences(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMailingListRecordRepository(db, zap.NewNop())
	before := time.Date(2024, time.April, 16, 0, 0, 0, 0, time.UTC)
	subscribed := time.Date(2024, time.April, 3, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM contact_mailing_lists WHERE mailing_list_id = ANY($1) AND date_created < $2 "+
			"GROUP BY contact_id ORDER BY MIN(date_created) ASC, contact_id ASC")).
		WithArgs(pq.Array([]int64{5}), before).
		WillReturnRows(sqlmock.NewRows([]string{
			"contact_id", "target_id", "subscription_status", "source_type", "source",
			"subscribed", "unsubscribed", "complained", "bounced", "verified",
			"date_created", "date_updated",
		}).AddRow(1, 5, "subscribed", "import", "3", subscribed, nil, nil, nil, nil, subscribed, subscribed))

	records, err := repo.FirstOccurrences(context.Background(), ForTarget(5), before)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TargetMailingList, records[0].TargetType)
	assert.Equal(t, SourceImport, records[0].SourceType)
	require.NotNil(t, records[0].Subscribed)
	assert.Equal(t, subscribed, *records[0].Subscribed)
}

func TestRecordRepository_FindWithLimit(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRecordRepository(db, zap.NewNop())
	ts := time.Date(2024, time.April, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE campaign_id = ANY($1) AND opened IS NOT NULL ORDER BY date_updated DESC LIMIT $2")).
		WithArgs(pq.Array([]int64{4}), 10).
		WillReturnRows(sqlmock.NewRows(campaignRecordColumns).
			AddRow(1, 4, 2, ts, ts, nil, nil, nil, nil, 3, 0, ts, ts).
			AddRow(2, 4, 2, ts, ts, ts, nil, nil, nil, 1, 1, ts, ts))

	f := ForTarget(4)
	f.NotNull = []Kind{KindOpened}
	records, err := repo.Find(context.Background(), f, OrderDateUpdatedDesc, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Opens)
	require.NotNil(t, records[0].SendoutID)
	assert.Equal(t, int64(2), *records[0].SendoutID)
	assert.Equal(t, TargetCampaign, records[1].TargetType)
}

func TestRecordRepository_CountAndContactIDs(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMailingListRecordRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM contact_mailing_lists WHERE subscription_status = $1")).
		WithArgs("unsubscribed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT contact_id FROM contact_mailing_lists WHERE mailing_list_id = ANY($1) AND subscribed IS NOT NULL GROUP BY contact_id")).
		WithArgs(pq.Array([]int64{3})).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id"}).AddRow(4).AddRow(8))

	count, err := repo.Count(context.Background(), Filter{SubscriptionStatus: "unsubscribed"})
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	f := ForTarget(3)
	f.NotNull = []Kind{KindSubscribed}
	ids, err := repo.ContactIDs(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 8}, ids)
}

func TestContactRepository_CountryCounts(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewContactRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM contacts WHERE id = ANY($1) GROUP BY COALESCE(country, '')")).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"country", "geo_ip", "count"}).
			AddRow("", nil, 1).
			AddRow("Peru", []byte(`{"countryCode":"PE"}`), 1))

	rows, err := repo.CountryCounts(context.Background(), OnlyContacts([]int64{1, 2}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].Country)
	assert.Nil(t, rows[0].GeoIP)
	require.NotNil(t, rows[1].GeoIP)
	assert.JSONEq(t, `{"countryCode":"PE"}`, string(*rows[1].GeoIP))
}

func TestContactRepository_EmptyScopeSkipsQuery(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewContactRepository(db, zap.NewNop())

	rows, err := repo.CountryCounts(context.Background(), OnlyContacts(nil))
	require.NoError(t, err)
	assert.Empty(t, rows)

	devices, err := repo.DeviceCounts(context.Background(), OnlyContacts([]int64{}), true)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestContactRepository_DeviceCountsDetailed(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewContactRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT device, os, client, COUNT(*) AS count FROM contacts WHERE device IS NOT NULL GROUP BY device, os, client")).
		WillReturnRows(sqlmock.NewRows([]string{"device", "os", "client", "count"}).
			AddRow("mobile", "Android", nil, 4))

	rows, err := repo.DeviceCounts(context.Background(), AllContacts(), true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "mobile", rows[0].Device)
	require.NotNil(t, rows[0].OS)
	assert.Equal(t, "Android", *rows[0].OS)
	assert.Nil(t, rows[0].Client)
}

func TestContactRepository_CountActive(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewContactRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE complained IS NULL AND bounced IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	count, err := repo.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 41, count)
}

func TestCampaignRepository_CampaignByIDNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRepository(db, zap.NewNop())

	mock.ExpectQuery("FROM campaigns WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.CampaignByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignRepository_SentCampaignsForSite(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRepository(db, zap.NewNop())
	site := int64(2)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND site_id = $2 ORDER BY last_sent DESC NULLS LAST")).
		WithArgs(CampaignStatusSent, site).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "site_id", "title", "status", "recipients", "opened", "clicked", "opens", "clicks", "last_sent",
		}).AddRow(1, 2, "Spring sale", "sent", 100, 40, 10, 55, 12, nil))

	campaigns, err := repo.SentCampaigns(context.Background(), &site)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Spring sale", campaigns[0].Title)
	assert.Equal(t, 40, campaigns[0].Opened)
}

func TestCampaignRepository_ClickedLinks(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCampaignRepository(db, zap.NewNop())

	linkColumns := []string{"contact_id", "id", "campaign_id", "url", "title", "clicked", "clicks", "last_click"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cl.contact_id = ANY($1) AND cl.campaign_id = ANY($2)")).
		WithArgs(pq.Array([]int64{1, 2}), pq.Array([]int64{10, 20})).
		WillReturnRows(sqlmock.NewRows(linkColumns).
			AddRow(1, 100, 10, "https://example.com/a", "A", 1, 1, nil).
			AddRow(1, 200, 20, "https://example.com/b", "B", 1, 1, nil).
			AddRow(2, 201, 20, "https://example.com/c", "C", 1, 2, nil))

	links, err := repo.ClickedLinks(context.Background(), []ContactKey{
		{ContactID: 1, TargetID: 10},
		{ContactID: 2, TargetID: 20},
	})
	require.NoError(t, err)

	assert.Len(t, links, 2)
	require.Len(t, links[ContactKey{ContactID: 1, TargetID: 10}], 1)
	assert.Equal(t, "https://example.com/a", links[ContactKey{ContactID: 1, TargetID: 10}][0].URL)
	assert.Equal(t, int64(201), links[ContactKey{ContactID: 2, TargetID: 20}][0].ID)
	assert.NotContains(t, links, ContactKey{ContactID: 1, TargetID: 20})
}

// setupCountingMockDB records the number of bind parameters of every query
// sent to the driver.
func setupCountingMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, *[]int) {
	placeholder := regexp.MustCompile(`\$\d+`)
	var counts []int

	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		counts = append(counts, len(placeholder.FindAllString(actualSQL, -1)))
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)

	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	return db, mock, &counts
}

func TestCampaignRepository_ClickedLinksManyClickers(t *testing.T) {
	db, mock, counts := setupCountingMockDB(t)
	repo := NewCampaignRepository(db, zap.NewNop())

	keys := make([]ContactKey, 40000)
	for i := range keys {
		keys[i] = ContactKey{ContactID: int64(i + 1), TargetID: 7}
	}

	mock.ExpectQuery("FROM contact_links").
		WithArgs(sqlmock.AnyArg(), pq.Array([]int64{7})).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id", "id", "campaign_id", "url", "title", "clicked", "clicks", "last_click"}))

	_, err := repo.ClickedLinks(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, *counts)
}

func TestContactRepository_LargeScope(t *testing.T) {
	db, mock, counts := setupCountingMockDB(t)
	repo := NewContactRepository(db, zap.NewNop())

	ids := make([]int64, 70000)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	mock.ExpectQuery("FROM contacts").
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"country", "geo_ip", "count"}).AddRow("Peru", nil, 70000))
	mock.ExpectQuery("FROM contacts").
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"device", "count"}).AddRow("desktop", 70000))

	rows, err := repo.CountryCounts(context.Background(), OnlyContacts(ids))
	require.NoError(t, err)
	assert.Equal(t, 70000, rows[0].Count)

	devices, err := repo.DeviceCounts(context.Background(), OnlyContacts(ids), false)
	require.NoError(t, err)
	assert.Equal(t, 70000, devices[0].Count)

	assert.Equal(t, []int{1, 1}, *counts)
}

func TestCampaignRepository_ClickedLinksNoKeys(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewCampaignRepository(db, zap.NewNop())

	links, err := repo.ClickedLinks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestMailingListRepository_MailingListByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewMailingListRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ml.id = $1")).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "site_id", "title", "subscribed", "unsubscribed", "complained", "bounced",
		}).AddRow(6, 1, "Newsletter", 30, 4, 1, 2))

	list, err := repo.MailingListByID(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, 30, list.Subscribed)
	assert.Equal(t, 2, list.Bounced)
}

func TestSendoutFilter_Where(t *testing.T) {
	campaign := int64(3)
	list := int64(8)

	where, args := SendoutFilter{CampaignID: &campaign, MailingListID: &list}.where()
	assert.Equal(t,
		" WHERE s.campaign_id = $1 AND EXISTS (SELECT 1 FROM sendout_mailing_lists sml"+
			" WHERE sml.sendout_id = s.id AND sml.mailing_list_id = $2)",
		where)
	assert.Equal(t, []any{int64(3), int64(8)}, args)

	where, args = SendoutFilter{}.where()
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestSendoutRepository_CountSendouts(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSendoutRepository(db, zap.NewNop())
	site := int64(5)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sendouts s WHERE s.site_id = $1")).
		WithArgs(site).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountSendouts(context.Background(), SendoutFilter{SiteID: &site})
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}
