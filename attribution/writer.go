package attribution

import (
	"context"

	"github.com/rs/zerolog"
)

// ContactUpdater writes properties onto one CRM contact.
type ContactUpdater interface {
	UpdateContact(ctx context.Context, accessToken, contactID string, properties map[string]string) error
}

// WriteObserver is told the path ("creation" or "update") and outcome
// ("success" or "failure") of every write.
type WriteObserver func(path, outcome string)

type Writer struct {
	crm     ContactUpdater
	logger  zerolog.Logger
	observe WriteObserver
}

type WriterOption func(*Writer)

func WithLogger(logger zerolog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

func WithWriteObserver(observe WriteObserver) WriterOption {
	return func(w *Writer) {
		w.observe = observe
	}
}

func NewWriter(crm ContactUpdater, options ...WriterOption) *Writer {
	w := &Writer{crm: crm, logger: zerolog.Nop()}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// ApplyCreationAttribution writes the current, first-touch and last-touch
// groups from a single source. It is only meant for newly created contacts,
// so it overwrites unconditionally.
func (w *Writer) ApplyCreationAttribution(ctx context.Context, accessToken, contactID string, attrs Attrs) error {
	return w.write(ctx, "creation", accessToken, contactID, Properties(attrs, CurrentTouch, FirstTouch, LastTouch))
}

// ApplyUpdateAttribution writes the last-touch group only; first-touch
// properties are never part of the payload.
func (w *Writer) ApplyUpdateAttribution(ctx context.Context, accessToken, contactID string, attrs Attrs) error {
	return w.write(ctx, "update", accessToken, contactID, Properties(attrs, LastTouch))
}

func (w *Writer) write(ctx context.Context, path, accessToken, contactID string, props map[string]string) error {
	if err := w.crm.UpdateContact(ctx, accessToken, contactID, props); err != nil {
		w.report(path, "failure")
		w.logger.Error().Err(err).Str("contact_id", contactID).Str("path", path).Msg("attribution write failed")
		return err
	}
	w.report(path, "success")
	w.logger.Info().Str("contact_id", contactID).Str("path", path).Int("properties", len(props)).Msg("attribution written")
	return nil
}

func (w *Writer) report(path, outcome string) {
	if w.observe != nil {
		w.observe(path, outcome)
	}
}
