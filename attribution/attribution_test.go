package attribution_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/crm"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const landingURL = "https://www.example.com/?utm_campaign=test_campaign&utm_medium=test_medium&utm_source=test_source&utm_content=test_content&utm_term=test_term&campaign_id=123&user_id=456"

type update struct {
	contactID string
	props     map[string]string
}

type fakeCRM struct {
	mu      sync.Mutex
	updates []update
	failFor map[string]bool
}

func (f *fakeCRM) UpdateContact(ctx context.Context, accessToken, contactID string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[contactID] {
		return fmt.Errorf("%w: contact %s: status=400", apperrors.ErrWrite, contactID)
	}
	f.updates = append(f.updates, update{contactID: contactID, props: properties})
	return nil
}

func TestParse(t *testing.T) {
	attrs := attribution.Parse(landingURL)
	require.Equal(t, attribution.Attrs{
		attribution.Campaign: "test_campaign",
		attribution.Source:   "test_source",
		attribution.Medium:   "test_medium",
		attribution.Term:     "test_term",
		attribution.Content:  "test_content",
		attribution.UserID:   "456",
	}, attrs)

	t.Run("bare query", func(t *testing.T) {
		attrs := attribution.Parse("utm_source=ads&utm_medium=cpc")
		require.Equal(t, "ads", attrs.Get(attribution.Source))
		require.Equal(t, "", attrs.Get(attribution.Campaign))
		require.False(t, attrs.Empty())
	})

	t.Run("malformed pair is skipped", func(t *testing.T) {
		attrs := attribution.Parse("?utm_source=ads&utm_term=%zz#top")
		require.Equal(t, "ads", attrs.Get(attribution.Source))
		require.Equal(t, "", attrs.Get(attribution.Term))
	})

	t.Run("nothing tracked", func(t *testing.T) {
		require.True(t, attribution.Parse("https://www.example.com/?page=2").Empty())
		require.True(t, attribution.Parse("").Empty())
	})
}

func TestPropertyName(t *testing.T) {
	require.Equal(t, "utm_campaign1", attribution.PropertyName(attribution.Campaign, attribution.CurrentTouch))
	require.Equal(t, "user_id", attribution.PropertyName(attribution.UserID, attribution.CurrentTouch))
	require.Equal(t, "utm_source_first_touch", attribution.PropertyName(attribution.Source, attribution.FirstTouch))
	require.Equal(t, "user_id_last_touch", attribution.PropertyName(attribution.UserID, attribution.LastTouch))
	require.Len(t, attribution.PropertyDefinitions(), 18)
}

func TestWriter_ApplyCreationAttribution(t *testing.T) {
	fake := &fakeCRM{}
	var observed []string
	w := attribution.NewWriter(fake, attribution.WithWriteObserver(func(path, outcome string) {
		observed = append(observed, path+":"+outcome)
	}))

	attrs := attribution.Parse(landingURL)
	require.NoError(t, w.ApplyCreationAttribution(context.Background(), "A1", "51", attrs))

	require.Len(t, fake.updates, 1)
	props := fake.updates[0].props
	require.Len(t, props, 18)
	for _, d := range attribution.Dimensions {
		current := props[attribution.PropertyName(d, attribution.CurrentTouch)]
		require.Equal(t, attrs.Get(d), current)
		require.Equal(t, current, props[attribution.PropertyName(d, attribution.FirstTouch)])
		require.Equal(t, current, props[attribution.PropertyName(d, attribution.LastTouch)])
	}
	require.Equal(t, []string{"creation:success"}, observed)
}

func TestWriter_ApplyUpdateAttribution(t *testing.T) {
	fake := &fakeCRM{}
	w := attribution.NewWriter(fake)

	attrs := attribution.Attrs{attribution.Source: "newsletter"}
	require.NoError(t, w.ApplyUpdateAttribution(context.Background(), "A1", "77", attrs))

	require.Len(t, fake.updates, 1)
	props := fake.updates[0].props
	require.Len(t, props, len(attribution.Dimensions))
	require.Equal(t, "newsletter", props["utm_source_last_touch"])
	// Missing dimensions are explicit empty values.
	v, ok := props["utm_campaign_last_touch"]
	require.True(t, ok)
	require.Equal(t, "", v)
	for name := range props {
		require.NotContains(t, name, "first_touch")
	}
}

func TestWriter_FailureIsIsolatedPerContact(t *testing.T) {
	fake := &fakeCRM{failFor: map[string]bool{"bad": true}}
	w := attribution.NewWriter(fake)
	attrs := attribution.Parse(landingURL)

	err := w.ApplyCreationAttribution(context.Background(), "A1", "bad", attrs)
	require.ErrorIs(t, err, apperrors.ErrWrite)
	require.NoError(t, w.ApplyCreationAttribution(context.Background(), "A1", "good", attrs))
	require.Len(t, fake.updates, 1)
	require.Equal(t, "good", fake.updates[0].contactID)
}

type fakeCreator struct {
	mu       sync.Mutex
	calls    int
	existing map[string]bool
	err      error
}

func (f *fakeCreator) CreateProperty(ctx context.Context, accessToken string, def crm.PropertyDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.existing[def.Name] {
		return apperrors.ErrPropertyExists
	}
	return nil
}

func TestProvisioner_Ensure(t *testing.T) {
	t.Run("existing properties are not fatal and run once", func(t *testing.T) {
		creator := &fakeCreator{existing: map[string]bool{"utm_source1": true}}
		p := attribution.NewProvisioner(creator, zerolog.Nop())

		require.NoError(t, p.Ensure(context.Background(), "s1", "A1"))
		require.NoError(t, p.Ensure(context.Background(), "s1", "A1"))
		require.Equal(t, 18, creator.calls)

		p.Forget("s1")
		require.NoError(t, p.Ensure(context.Background(), "s1", "A1"))
		require.Equal(t, 36, creator.calls)
	})

	t.Run("failure is retried on next call", func(t *testing.T) {
		creator := &fakeCreator{err: errors.New("status=500")}
		p := attribution.NewProvisioner(creator, zerolog.Nop())

		require.Error(t, p.Ensure(context.Background(), "s1", "A1"))
		creator.err = nil
		require.NoError(t, p.Ensure(context.Background(), "s1", "A1"))
		require.Equal(t, 36, creator.calls)
	})
}
