package interaction

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SendoutFilter narrows sendout queries. Nil fields do not restrict.
type SendoutFilter struct {
	SiteID        *int64
	CampaignID    *int64
	MailingListID *int64
}

type SendoutRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSendoutRepository(db *sqlx.DB, logger *zap.Logger) *SendoutRepository {
	return &SendoutRepository{
		db:     db,
		logger: logger,
	}
}

func (f SendoutFilter) where() (string, []any) {
	where := ""
	var args []any
	add := func(cond string, arg int64) {
		args = append(args, arg)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}

	if f.SiteID != nil {
		add("s.site_id = $%d", *f.SiteID)
	}
	if f.CampaignID != nil {
		add("s.campaign_id = $%d", *f.CampaignID)
	}
	if f.MailingListID != nil {
		add("EXISTS (SELECT 1 FROM sendout_mailing_lists sml WHERE sml.sendout_id = s.id AND sml.mailing_list_id = $%d)",
			*f.MailingListID)
	}
	return where, args
}

// Sendouts returns sendouts ordered by send date, earliest first.
func (r *SendoutRepository) Sendouts(ctx context.Context, f SendoutFilter) ([]Sendout, error) {
	where, args := f.where()
	query := `
		SELECT s.id, s.site_id, s.campaign_id, s.title, s.status, s.send_date, s.recipients
		FROM sendouts s` + where + `
		ORDER BY s.send_date ASC NULLS LAST, s.id ASC`

	var sendouts []Sendout
	if err := r.db.SelectContext(ctx, &sendouts, query, args...); err != nil {
		r.logger.Error("Failed to get sendouts", zap.Error(err))
		return nil, fmt.Errorf("failed to get sendouts: %w", err)
	}

	return sendouts, nil
}

func (r *SendoutRepository) CountSendouts(ctx context.Context, f SendoutFilter) (int, error) {
	where, args := f.where()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sendouts s"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count sendouts: %w", err)
	}
	return count, nil
}
