package interaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const CampaignStatusSent = "sent"

type CampaignRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewCampaignRepository(db *sqlx.DB, logger *zap.Logger) *CampaignRepository {
	return &CampaignRepository{
		db:     db,
		logger: logger,
	}
}

const campaignColumns = `
	id, site_id, title, status, recipients, opened, clicked, opens, clicks, last_sent`

// CampaignByID returns ErrNotFound when no campaign has the id.
func (r *CampaignRepository) CampaignByID(ctx context.Context, id int64) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var campaign Campaign
	if err := r.db.GetContext(ctx, &campaign, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get campaign", zap.Error(err), zap.Int64("campaign_id", id))
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// SentCampaigns returns sent campaigns, most recently sent first. A nil site
// id covers every site.
func (r *CampaignRepository) SentCampaigns(ctx context.Context, siteID *int64) ([]Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1`
	args := []any{CampaignStatusSent}

	if siteID != nil {
		query += " AND site_id = $2"
		args = append(args, *siteID)
	}
	query += " ORDER BY last_sent DESC NULLS LAST, id DESC"

	var campaigns []Campaign
	if err := r.db.SelectContext(ctx, &campaigns, query, args...); err != nil {
		r.logger.Error("Failed to get sent campaigns", zap.Error(err))
		return nil, fmt.Errorf("failed to get sent campaigns: %w", err)
	}

	return campaigns, nil
}

// Links returns the tracked links of a campaign, most clicked first.
func (r *CampaignRepository) Links(ctx context.Context, campaignID int64, limit int) ([]Link, error) {
	query := `
		SELECT id, campaign_id, url, title, clicked, clicks, last_click
		FROM links
		WHERE campaign_id = $1
		ORDER BY clicked DESC, clicks DESC, id ASC`
	args := []any{campaignID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var links []Link
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.Error("Failed to get campaign links", zap.Error(err), zap.Int64("campaign_id", campaignID))
		return nil, fmt.Errorf("failed to get campaign links: %w", err)
	}

	return links, nil
}

type contactLink struct {
	Link
	ContactID int64 `db:"contact_id"`
}

// ClickedLinks returns the links each of the given contacts clicked, keyed by
// contact and campaign.
func (r *CampaignRepository) ClickedLinks(ctx context.Context, keys []ContactKey) (map[ContactKey][]Link, error) {
	out := make(map[ContactKey][]Link)
	if len(keys) == 0 {
		return out, nil
	}

	contactIDs := distinct(keys, func(k ContactKey) int64 { return k.ContactID })
	campaignIDs := distinct(keys, func(k ContactKey) int64 { return k.TargetID })

	query := `
		SELECT cl.contact_id, l.id, l.campaign_id, l.url, l.title, l.clicked, l.clicks, l.last_click
		FROM contact_links cl
		JOIN links l ON l.id = cl.link_id
		WHERE cl.contact_id = ANY($1) AND cl.campaign_id = ANY($2)
		ORDER BY cl.contact_id, l.id`

	var rows []contactLink
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(contactIDs), pq.Array(campaignIDs)); err != nil {
		r.logger.Error("Failed to get clicked links", zap.Error(err))
		return nil, fmt.Errorf("failed to get clicked links: %w", err)
	}

	wanted := make(map[ContactKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	for _, row := range rows {
		key := ContactKey{ContactID: row.ContactID, TargetID: row.CampaignID}
		if wanted[key] {
			out[key] = append(out[key], row.Link)
		}
	}

	return out, nil
}

func distinct(keys []ContactKey, id func(ContactKey) int64) []int64 {
	seen := make(map[int64]bool, len(keys))
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		if v := id(k); !seen[v] {
			seen[v] = true
			ids = append(ids, v)
		}
	}
	return ids
}
