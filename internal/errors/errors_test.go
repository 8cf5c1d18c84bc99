package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestIsAuthError(t *testing.T) {
	require.True(t, apperrors.IsAuthError(apperrors.ErrNoRefreshToken))
	require.True(t, apperrors.IsAuthError(fmt.Errorf("user u1: %w", apperrors.ErrRefreshFailed)))
	require.True(t, apperrors.IsAuthError(apperrors.Wrapf(apperrors.ErrExchangeFailed, "code %s", "abc")))
	require.False(t, apperrors.IsAuthError(apperrors.ErrFetch))
	require.False(t, apperrors.IsAuthError(nil))
}

func TestWrapf(t *testing.T) {
	require.Nil(t, apperrors.Wrapf(nil, "ignored"))

	err := apperrors.Wrapf(apperrors.ErrWrite, "contact %d", 42)
	require.EqualError(t, err, "contact 42: crm write failed")
	require.True(t, apperrors.Is(err, apperrors.ErrWrite))
}
