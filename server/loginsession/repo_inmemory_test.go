package loginsession_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"github.com/jrsteele09/go-forward-auth/server/loginsession"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGet(t *testing.T) {
	repo := loginsession.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Upsert("sid-1", loginsession.Session{
		RedirectURL: "https://app.example.org/dashboard",
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}))

	session, err := repo.Get("sid-1")
	require.NoError(t, err)
	require.Equal(t, "https://app.example.org/dashboard", session.RedirectURL)
}

func TestGetUnknownSession(t *testing.T) {
	repo := loginsession.NewInMemoryRepo()

	_, err := repo.Get("missing")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestExpiredSessionNotReturned(t *testing.T) {
	repo := loginsession.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Upsert("sid-1", loginsession.Session{
		RedirectURL: "https://app.example.org/",
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(-time.Minute),
	}))

	_, err := repo.Get("sid-1")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo := loginsession.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Upsert("sid-1", loginsession.Session{
		RedirectURL: "https://app.example.org/",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}))
	require.NoError(t, repo.Delete("sid-1"))
	require.NoError(t, repo.Delete("sid-1"))

	_, err := repo.Get("sid-1")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}
