// Package detect runs one change-detection cycle: it looks at the most
// recently created and most recently updated contact and dispatches each to
// the matching attribution path.
package detect

import (
	"context"
	"fmt"
	"sync"

	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/crm"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/rs/zerolog"
)

// ContactLister fetches the recent-contact lists.
type ContactLister interface {
	RecentlyCreated(ctx context.Context, accessToken string, count int) ([]crm.Contact, error)
	RecentlyUpdated(ctx context.Context, accessToken string, count int) ([]crm.Contact, error)
}

// AttributionApplier performs the two attribution writes.
type AttributionApplier interface {
	ApplyCreationAttribution(ctx context.Context, accessToken, contactID string, attrs attribution.Attrs) error
	ApplyUpdateAttribution(ctx context.Context, accessToken, contactID string, attrs attribution.Attrs) error
}

// Result describes one tick.
type Result struct {
	CreatedID       string         `json:"created_id,omitempty"`
	UpdatedID       string         `json:"updated_id,omitempty"`
	Classification  Classification `json:"classification"`
	CreationWritten bool           `json:"creation_written"`
	UpdateWritten   bool           `json:"update_written"`
	// UpdateSkipped is set when the updated candidate was already written for
	// the same modification time in an earlier tick, or was attributed through
	// the creation path.
	UpdateSkipped bool `json:"update_skipped,omitempty"`
}

type Detector struct {
	lister ContactLister
	writer AttributionApplier
	count  int
	logger zerolog.Logger

	mu          sync.Mutex
	lastUpdates map[string]string              // user ID to contactID|lastmodifieddate last written
	created     map[string]map[string]struct{} // user ID to contact ids written by the creation path
}

type Option func(*Detector)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func New(lister ContactLister, writer AttributionApplier, options ...Option) *Detector {
	d := &Detector{
		lister:      lister,
		writer:      writer,
		count:       1,
		logger:      zerolog.Nop(),
		lastUpdates: make(map[string]string),
		created:     make(map[string]map[string]struct{}),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Tick runs one cycle for userID. A fetch failure aborts the tick and is
// returned wrapped in ErrFetch. Write failures and classification ambiguity
// do not abort the tick; they come back joined alongside a populated Result.
func (d *Detector) Tick(ctx context.Context, userID, accessToken string, attrs attribution.Attrs) (Result, error) {
	var res Result

	created, err := d.lister.RecentlyCreated(ctx, accessToken, d.count)
	if err != nil {
		return res, ensureFetch(err)
	}
	updated, err := d.lister.RecentlyUpdated(ctx, accessToken, d.count)
	if err != nil {
		return res, ensureFetch(err)
	}

	var errs []error
	log := d.logger.With().Str("user_id", userID).Logger()

	if len(created) > 0 {
		res.CreatedID = created[0].ID
		if err := d.writer.ApplyCreationAttribution(ctx, accessToken, res.CreatedID, attrs); err != nil {
			errs = append(errs, err)
		} else {
			res.CreationWritten = true
			d.rememberCreated(userID, res.CreatedID)
		}
	}

	if len(updated) > 0 {
		candidate := updated[0]
		res.UpdatedID = candidate.ID
		class, err := Classify(candidate)
		res.Classification = class
		switch class {
		case Ambiguous:
			log.Warn().Err(err).Str("contact_id", candidate.ID).Msg("skipping update attribution")
			errs = append(errs, err)
		case Updated:
			// Our own creation write bumps lastmodifieddate, so the record shows
			// up as updated on the next tick.
			if candidate.ID == res.CreatedID || d.wasCreated(userID, candidate.ID) {
				res.UpdateSkipped = true
				break
			}
			key := candidate.ID + "|" + candidate.Properties[crm.PropertyLastModifiedDate]
			if d.alreadyWritten(userID, key) {
				res.UpdateSkipped = true
				break
			}
			if err := d.writer.ApplyUpdateAttribution(ctx, accessToken, candidate.ID, attrs); err != nil {
				errs = append(errs, err)
			} else {
				res.UpdateWritten = true
				d.remember(userID, key)
			}
		}
	}

	log.Debug().
		Str("created_id", res.CreatedID).
		Str("updated_id", res.UpdatedID).
		Stringer("classification", res.Classification).
		Bool("creation_written", res.CreationWritten).
		Bool("update_written", res.UpdateWritten).
		Msg("tick complete")
	return res, apperrors.Join(errs...)
}

// Forget drops the per-user idempotence state.
func (d *Detector) Forget(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastUpdates, userID)
	delete(d.created, userID)
}

func (d *Detector) alreadyWritten(userID, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUpdates[userID] == key
}

func (d *Detector) remember(userID, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastUpdates[userID] = key
}

func (d *Detector) rememberCreated(userID, contactID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids, ok := d.created[userID]
	if !ok {
		ids = make(map[string]struct{})
		d.created[userID] = ids
	}
	ids[contactID] = struct{}{}
}

func (d *Detector) wasCreated(userID, contactID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.created[userID][contactID]
	return ok
}

func ensureFetch(err error) error {
	if apperrors.Is(err, apperrors.ErrFetch) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrFetch, err)
}
