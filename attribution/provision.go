package attribution

import (
	"context"
	"fmt"
	"sync"

	"github.com/ranaawaisahmad/utmApp/crm"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// PropertyCreator defines custom properties in the CRM.
type PropertyCreator interface {
	CreateProperty(ctx context.Context, accessToken string, def crm.PropertyDefinition) error
}

// Provisioner makes sure every attribution property exists in the CRM
// account behind a session. It runs at most once per session successfully;
// a failed run is retried on the next call.
type Provisioner struct {
	creator PropertyCreator
	defs    []crm.PropertyDefinition
	logger  zerolog.Logger

	flights singleflight.Group
	mu      sync.Mutex
	done    map[string]bool
}

func NewProvisioner(creator PropertyCreator, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		creator: creator,
		defs:    PropertyDefinitions(),
		logger:  logger,
		done:    make(map[string]bool),
	}
}

// Ensure creates the properties for userID's CRM account if that has not
// already succeeded. Properties that already exist are not an error.
func (p *Provisioner) Ensure(ctx context.Context, userID, accessToken string) error {
	if p.provisioned(userID) {
		return nil
	}
	_, err, _ := p.flights.Do(userID, func() (any, error) {
		if p.provisioned(userID) {
			return nil, nil
		}
		return nil, p.provision(ctx, userID, accessToken)
	})
	return err
}

func (p *Provisioner) provision(ctx context.Context, userID, accessToken string) error {
	var errs []error
	created := 0
	for _, def := range p.defs {
		err := p.creator.CreateProperty(ctx, accessToken, def)
		switch {
		case err == nil:
			created++
		case apperrors.Is(err, apperrors.ErrPropertyExists):
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("provisioning %d of %d properties failed: %w", len(errs), len(p.defs), apperrors.Join(errs...))
	}

	p.mu.Lock()
	p.done[userID] = true
	p.mu.Unlock()
	p.logger.Info().Str("user_id", userID).Int("created", created).Int("total", len(p.defs)).Msg("attribution properties provisioned")
	return nil
}

func (p *Provisioner) provisioned(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[userID]
}

// Forget clears the provisioned mark for userID.
func (p *Provisioner) Forget(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.done, userID)
}
