package interaction

// Order selects how records are sorted.
type Order int

const (
	OrderNone Order = iota
	OrderDateCreatedAsc
	OrderDateUpdatedDesc
	OrderSentDesc
)

// Filter scopes a query over interaction records. Zero values do not
// restrict the query.
type Filter struct {
	TargetIDs []int64
	ContactID int64
	SendoutID *int64

	// NotNull requires every listed kind to have occurred.
	NotNull []Kind
	// AnyNotNull requires at least one listed kind to have occurred.
	AnyNotNull []Kind

	SubscriptionStatus string
}

// ForTarget scopes a filter to a single campaign or mailing list.
func ForTarget(id int64) Filter {
	return Filter{TargetIDs: []int64{id}}
}

// ForContact scopes a filter to one contact, optionally within targets.
func ForContact(contactID int64, targetIDs ...int64) Filter {
	return Filter{ContactID: contactID, TargetIDs: targetIDs}
}

// ContactKey identifies a contact within a target.
type ContactKey struct {
	ContactID int64
	TargetID  int64
}

func (r *Record) Key() ContactKey {
	return ContactKey{ContactID: r.ContactID, TargetID: r.TargetID}
}
