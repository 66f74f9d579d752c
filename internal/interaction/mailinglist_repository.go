package interaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type MailingListRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewMailingListRepository(db *sqlx.DB, logger *zap.Logger) *MailingListRepository {
	return &MailingListRepository{
		db:     db,
		logger: logger,
	}
}

// Subscription counts are derived from the current status of every contact
// on the list.
const mailingListSelect = `
	SELECT ml.id, ml.site_id, ml.title,
	       COUNT(cml.contact_id) FILTER (WHERE cml.subscription_status = 'subscribed') AS subscribed,
	       COUNT(cml.contact_id) FILTER (WHERE cml.subscription_status = 'unsubscribed') AS unsubscribed,
	       COUNT(cml.contact_id) FILTER (WHERE cml.subscription_status = 'complained') AS complained,
	       COUNT(cml.contact_id) FILTER (WHERE cml.subscription_status = 'bounced') AS bounced
	FROM mailing_lists ml
	LEFT JOIN contact_mailing_lists cml ON cml.mailing_list_id = ml.id`

// MailingListByID returns ErrNotFound when no mailing list has the id.
func (r *MailingListRepository) MailingListByID(ctx context.Context, id int64) (*MailingList, error) {
	query := mailingListSelect + `
	WHERE ml.id = $1
	GROUP BY ml.id, ml.site_id, ml.title`

	var list MailingList
	if err := r.db.GetContext(ctx, &list, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get mailing list", zap.Error(err), zap.Int64("mailing_list_id", id))
		return nil, fmt.Errorf("failed to get mailing list: %w", err)
	}

	return &list, nil
}

// MailingLists returns the mailing lists of a site, or of every site when
// siteID is nil.
func (r *MailingListRepository) MailingLists(ctx context.Context, siteID *int64) ([]MailingList, error) {
	query := mailingListSelect
	var args []any
	if siteID != nil {
		query += " WHERE ml.site_id = $1"
		args = append(args, *siteID)
	}
	query += " GROUP BY ml.id, ml.site_id, ml.title ORDER BY ml.title, ml.id"

	var lists []MailingList
	if err := r.db.SelectContext(ctx, &lists, query, args...); err != nil {
		r.logger.Error("Failed to get mailing lists", zap.Error(err))
		return nil, fmt.Errorf("failed to get mailing lists: %w", err)
	}

	return lists, nil
}
