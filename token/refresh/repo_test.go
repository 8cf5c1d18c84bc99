package refresh_test

import (
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/token/refresh"
	refreshrepofake "github.com/ranaawaisahmad/utmApp/token/refresh/repofake"
	"github.com/ranaawaisahmad/utmApp/token/refresh/sqlite"
	"github.com/stretchr/testify/require"
)

func repos(t *testing.T) map[string]refresh.Repo {
	t.Helper()

	sqliteRepo, err := sqlite.Open(filepath.Join(t.TempDir(), "tokens", "refresh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteRepo.Close() })

	return map[string]refresh.Repo{
		"memory": refreshrepofake.NewFakeRefreshTokenRepo(),
		"sqlite": sqliteRepo,
	}
}

func TestRepo_UpsertGetDelete(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get("s1")
			require.ErrorIs(t, err, apperrors.ErrNotFound)

			require.NoError(t, repo.Upsert(&refresh.StoredRefreshToken{UserID: "s1", Token: "R1", LastSeenAt: now}))
			require.NoError(t, repo.Upsert(&refresh.StoredRefreshToken{UserID: "s1", Token: "R2", LastSeenAt: now}))

			rt, err := repo.Get("s1")
			require.NoError(t, err)
			require.Equal(t, "R2", rt.Token)
			require.True(t, rt.LastSeenAt.Equal(now))

			require.NoError(t, repo.Delete("s1"))
			_, err = repo.Get("s1")
			require.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestRepo_DeleteIdleSince(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Upsert(&refresh.StoredRefreshToken{UserID: "old", Token: "R1", LastSeenAt: base}))
			require.NoError(t, repo.Upsert(&refresh.StoredRefreshToken{UserID: "touched", Token: "R2", LastSeenAt: base}))
			require.NoError(t, repo.Upsert(&refresh.StoredRefreshToken{UserID: "fresh", Token: "R3", LastSeenAt: base.Add(time.Hour)}))
			require.NoError(t, repo.Touch("touched", base.Add(2*time.Hour)))
			require.ErrorIs(t, repo.Touch("unknown", base), apperrors.ErrNotFound)

			removed, err := repo.DeleteIdleSince(base.Add(time.Minute))
			require.NoError(t, err)
			require.Equal(t, []string{"old"}, removed)

			_, err = repo.Get("old")
			require.ErrorIs(t, err, apperrors.ErrNotFound)
			_, err = repo.Get("touched")
			require.NoError(t, err)
			_, err = repo.Get("fresh")
			require.NoError(t, err)
		})
	}
}
