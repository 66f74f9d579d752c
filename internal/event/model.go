package event

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Wuchinator/campaign-reports/internal/interaction"
	"github.com/Wuchinator/campaign-reports/pkg/cache"
	"github.com/google/uuid"
)

// InteractionEvent is published by the ingestion pipeline each time a contact
// interaction is written to the record store.
type InteractionEvent struct {
	ID          uuid.UUID              `json:"id"`
	ContactID   int64                  `json:"contactId"`
	TargetType  interaction.TargetType `json:"targetType"`
	TargetID    int64                  `json:"targetId"`
	Interaction interaction.Kind       `json:"interaction"`
	OccurredAt  time.Time              `json:"occurredAt"`
}

func NewInteractionEvent(
	contactID int64,
	targetType interaction.TargetType,
	targetID int64,
	kind interaction.Kind,
) *InteractionEvent {
	return &InteractionEvent{
		ID:          uuid.New(),
		ContactID:   contactID,
		TargetType:  targetType,
		TargetID:    targetID,
		Interaction: kind,
		OccurredAt:  time.Now().UTC(),
	}
}

func (e *InteractionEvent) Validate() error {
	if e.ID == uuid.Nil {
		return ErrInvalidEventID
	}
	if e.ContactID <= 0 {
		return ErrInvalidContactID
	}
	if err := e.TargetType.Validate(); err != nil {
		return err
	}
	if e.TargetID <= 0 {
		return ErrInvalidTargetID
	}
	if _, err := interaction.ParseKind(e.TargetType, string(e.Interaction)); err != nil || e.Interaction == "" {
		return fmt.Errorf("%w: %q for %s", interaction.ErrInvalidKind, e.Interaction, e.TargetType)
	}
	if e.OccurredAt.IsZero() {
		return ErrMissingOccurredAt
	}
	return nil
}

// Key partitions events by contact so one contact's interactions stay ordered.
func (e *InteractionEvent) Key() string {
	return strconv.FormatInt(e.ContactID, 10)
}

// CacheTags lists the cached reports an interaction can change.
func (e *InteractionEvent) CacheTags() []string {
	tags := make([]string, 0, 3)
	switch e.TargetType {
	case interaction.TargetCampaign:
		tags = append(tags, cache.CampaignTag(e.TargetID))
	case interaction.TargetMailingList:
		tags = append(tags, cache.MailingListTag(e.TargetID))
	}
	return append(tags, cache.ContactTag(e.ContactID), cache.GlobalTag)
}
