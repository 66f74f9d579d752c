package interaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type recordTable struct {
	name         string
	targetColumn string
	targetType   TargetType
	// extra are non-interaction columns beyond the common ones.
	extra []extraColumn
}

type extraColumn struct {
	name string
	// text columns read NULL as the empty string.
	text bool
}

func (c extraColumn) expr() string {
	if c.text {
		return "COALESCE(" + c.name + ", '')"
	}
	return c.name
}

var (
	campaignTable = recordTable{
		name:         "contact_campaigns",
		targetColumn: "campaign_id",
		targetType:   TargetCampaign,
		extra:        []extraColumn{{name: "sendout_id"}},
	}
	mailingListTable = recordTable{
		name:         "contact_mailing_lists",
		targetColumn: "mailing_list_id",
		targetType:   TargetMailingList,
		extra: []extraColumn{
			{name: "subscription_status", text: true},
			{name: "source_type", text: true},
			{name: "source", text: true},
		},
	}
)

func (t recordTable) columns() []string {
	cols := []string{"contact_id", t.targetColumn + " AS target_id"}
	for _, c := range t.extra {
		if c.text {
			cols = append(cols, c.expr()+" AS "+c.name)
			continue
		}
		cols = append(cols, c.name)
	}
	for _, k := range t.targetType.Kinds() {
		cols = append(cols, string(k))
	}
	if t.targetType == TargetCampaign {
		cols = append(cols, "opens", "clicks")
	}
	return append(cols, "date_created", "date_updated")
}

// firstOccurrenceColumns collapses all rows of a contact into one, keeping
// the earliest time of every interaction.
func (t recordTable) firstOccurrenceColumns() []string {
	cols := []string{"contact_id", "MIN(" + t.targetColumn + ") AS target_id"}
	for _, c := range t.extra {
		cols = append(cols, fmt.Sprintf("MIN(%s) AS %s", c.expr(), c.name))
	}
	for _, k := range t.targetType.Kinds() {
		cols = append(cols, fmt.Sprintf("MIN(%s) AS %s", k, k))
	}
	if t.targetType == TargetCampaign {
		cols = append(cols, "MAX(opens) AS opens", "MAX(clicks) AS clicks")
	}
	return append(cols, "MIN(date_created) AS date_created", "MAX(date_updated) AS date_updated")
}

func (t recordTable) where(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(f.TargetIDs) > 0 {
		conds = append(conds, t.targetColumn+" = ANY(?)")
		args = append(args, pq.Array(f.TargetIDs))
	}
	if f.ContactID != 0 {
		conds = append(conds, "contact_id = ?")
		args = append(args, f.ContactID)
	}
	if f.SendoutID != nil && t.targetType == TargetCampaign {
		conds = append(conds, "sendout_id = ?")
		args = append(args, *f.SendoutID)
	}
	if f.SubscriptionStatus != "" && t.targetType == TargetMailingList {
		conds = append(conds, "subscription_status = ?")
		args = append(args, f.SubscriptionStatus)
	}
	for _, k := range f.NotNull {
		if t.targetType.Supports(k) {
			conds = append(conds, string(k)+" IS NOT NULL")
		}
	}

	var anyOf []string
	for _, k := range f.AnyNotNull {
		if t.targetType.Supports(k) {
			anyOf = append(anyOf, string(k)+" IS NOT NULL")
		}
	}
	if len(anyOf) > 0 {
		conds = append(conds, "("+strings.Join(anyOf, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(o Order) string {
	switch o {
	case OrderDateCreatedAsc:
		return " ORDER BY date_created ASC"
	case OrderDateUpdatedDesc:
		return " ORDER BY date_updated DESC"
	case OrderSentDesc:
		return " ORDER BY sent DESC"
	default:
		return ""
	}
}

// RecordRepository reads interaction records of one target type.
type RecordRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	table  recordTable
}

func NewCampaignRecordRepository(db *sqlx.DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger, table: campaignTable}
}

func NewMailingListRecordRepository(db *sqlx.DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger, table: mailingListTable}
}

func (r *RecordRepository) TargetType() TargetType {
	return r.table.targetType
}


// Earliest returns the first created record matching f, or ErrNotFound.
func (r *RecordRepository) Earliest(ctx context.Context, f Filter) (*Record, error) {
	where, args := r.table.where(f)
	query := "SELECT " + strings.Join(r.table.columns(), ", ") +
		" FROM " + r.table.name + where + orderClause(OrderDateCreatedAsc) + " LIMIT 1"

	var record Record
	if err := r.db.GetContext(ctx, &record, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get earliest record",
			zap.Error(err),
			zap.String("table", r.table.name),
		)
		return nil, fmt.Errorf("failed to get earliest record: %w", err)
	}
	record.TargetType = r.table.targetType

	return &record, nil
}

// FirstOccurrences returns one row per contact created before the given time,
// holding the first occurrence of every interaction across the contact's rows.
func (r *RecordRepository) FirstOccurrences(ctx context.Context, f Filter, before time.Time) ([]Record, error) {
	where, args := r.table.where(f)
	if where == "" {
		where = " WHERE date_created < ?"
	} else {
		where += " AND date_created < ?"
	}
	args = append(args, before)

	query := "SELECT " + strings.Join(r.table.firstOccurrenceColumns(), ", ") +
		" FROM " + r.table.name + where +
		" GROUP BY contact_id ORDER BY MIN(date_created) ASC, contact_id ASC"

	var records []Record
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to get first occurrences",
			zap.Error(err),
			zap.String("table", r.table.name),
		)
		return nil, fmt.Errorf("failed to get first occurrences: %w", err)
	}
	r.tag(records)

	return records, nil
}

// Find returns records matching f. A limit <= 0 returns all of them.
func (r *RecordRepository) Find(ctx context.Context, f Filter, order Order, limit int) ([]Record, error) {
	where, args := r.table.where(f)
	query := "SELECT " + strings.Join(r.table.columns(), ", ") +
		" FROM " + r.table.name + where + orderClause(order)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var records []Record
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to find records",
			zap.Error(err),
			zap.String("table", r.table.name),
		)
		return nil, fmt.Errorf("failed to find records: %w", err)
	}
	r.tag(records)

	return records, nil
}

func (r *RecordRepository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := r.table.where(f)
	query := r.db.Rebind("SELECT COUNT(*) FROM " + r.table.name + where)

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// ContactIDs returns the distinct contacts that have a record matching f.
func (r *RecordRepository) ContactIDs(ctx context.Context, f Filter) ([]int64, error) {
	where, args := r.table.where(f)
	query := r.db.Rebind("SELECT contact_id FROM " + r.table.name + where + " GROUP BY contact_id ORDER BY contact_id")

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get contact ids: %w", err)
	}
	return ids, nil
}

func (r *RecordRepository) tag(records []Record) {
	for i := range records {
		records[i].TargetType = r.table.targetType
	}
}
