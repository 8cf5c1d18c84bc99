package detect

import (
	"fmt"
	"time"

	"github.com/ranaawaisahmad/utmApp/crm"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
)

// Granularity is the resolution timestamps are compared at. It matches the
// minute-level formatting the CRM reports.
const Granularity = time.Minute

type Classification int

const (
	// Unclassified means there was no updated candidate this tick.
	Unclassified Classification = iota
	// Created means the updated candidate is really a fresh creation.
	Created
	// Updated means the updated candidate was modified after creation.
	Updated
	// Ambiguous means its timestamps were missing or malformed.
	Ambiguous
)

func (c Classification) String() string {
	switch c {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Ambiguous:
		return "AMBIGUOUS"
	}
	return "NONE"
}

func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify decides whether a recently updated contact was genuinely updated.
// Equal creation and modification minutes read as a creation. This is a
// heuristic: a real update within the creation minute reads as a creation.
func Classify(c crm.Contact) (Classification, error) {
	created, err := c.CreatedAt()
	if err != nil {
		return Ambiguous, fmt.Errorf("%w: contact %s createdate: %w", apperrors.ErrClassificationAmbiguity, c.ID, err)
	}
	modified, err := c.LastModifiedAt()
	if err != nil {
		return Ambiguous, fmt.Errorf("%w: contact %s lastmodifieddate: %w", apperrors.ErrClassificationAmbiguity, c.ID, err)
	}
	if created.Truncate(Granularity).Equal(modified.Truncate(Granularity)) {
		return Created, nil
	}
	return Updated, nil
}
