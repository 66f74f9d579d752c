package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ContactScope restricts contact aggregations to a set of ids. The zero value
// covers every contact.
type ContactScope struct {
	ids        []int64
	restricted bool
}

func AllContacts() ContactScope {
	return ContactScope{}
}

func OnlyContacts(ids []int64) ContactScope {
	return ContactScope{ids: ids, restricted: true}
}

func (s ContactScope) Restricted() bool { return s.restricted }

func (s ContactScope) IDs() []int64 { return s.ids }

// Empty reports whether the scope can match no contact at all.
func (s ContactScope) Empty() bool {
	return s.restricted && len(s.ids) == 0
}

type ContactRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewContactRepository(db *sqlx.DB, logger *zap.Logger) *ContactRepository {
	return &ContactRepository{
		db:     db,
		logger: logger,
	}
}

// scoped appends the scope as a single array parameter, so its size is not
// bounded by the driver's parameter limit.
func (r *ContactRepository) scoped(query string, scope ContactScope, conds ...string) (string, []any) {
	var args []any
	if scope.Restricted() {
		conds = append(conds, "id = ANY(?)")
		args = append(args, pq.Array(scope.IDs()))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

// CountryCounts groups contacts by country. Contacts without a country are
// grouped under the empty string.
func (r *ContactRepository) CountryCounts(ctx context.Context, scope ContactScope) ([]CountryCount, error) {
	if scope.Empty() {
		return nil, nil
	}

	query, args := r.scoped(
		"SELECT COALESCE(country, '') AS country, MAX(geo_ip::text) AS geo_ip, COUNT(*) AS count FROM contacts",
		scope,
	)
	query += " GROUP BY COALESCE(country, '') ORDER BY country"

	var rows []CountryCount
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to group contacts by country", zap.Error(err))
		return nil, fmt.Errorf("failed to group contacts by country: %w", err)
	}

	return rows, nil
}

// DeviceCounts groups contacts with a detected device by device, and by os and
// client as well when detailed.
func (r *ContactRepository) DeviceCounts(ctx context.Context, scope ContactScope, detailed bool) ([]DeviceCount, error) {
	if scope.Empty() {
		return nil, nil
	}

	fields := []string{"device"}
	if detailed {
		fields = append(fields, "os", "client")
	}
	group := strings.Join(fields, ", ")

	query, args := r.scoped(
		"SELECT "+group+", COUNT(*) AS count FROM contacts",
		scope,
		"device IS NOT NULL",
	)
	query += " GROUP BY " + group + " ORDER BY " + group

	var rows []DeviceCount
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to group contacts by device",
			zap.Error(err),
			zap.Bool("detailed", detailed),
		)
		return nil, fmt.Errorf("failed to group contacts by device: %w", err)
	}

	return rows, nil
}

// CountActive counts contacts that have neither complained nor bounced.
func (r *ContactRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM contacts WHERE complained IS NULL AND bounced IS NULL")
	if err != nil {
		return 0, fmt.Errorf("failed to count active contacts: %w", err)
	}
	return count, nil
}

// RecentlyActive returns contacts ordered by last activity, most recent first.
func (r *ContactRepository) RecentlyActive(ctx context.Context, limit int) ([]Contact, error) {
	query := `
		SELECT id, email, COALESCE(country, '') AS country, geo_ip, device, os, client,
		       last_activity, complained, bounced
		FROM contacts
		ORDER BY last_activity DESC NULLS LAST, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var contacts []Contact
	if err := r.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.Error("Failed to get recently active contacts", zap.Error(err))
		return nil, fmt.Errorf("failed to get recently active contacts: %w", err)
	}

	return contacts, nil
}
