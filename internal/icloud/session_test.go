package icloud

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icebox-backup/icebox/internal/backup"
	"github.com/icebox-backup/icebox/internal/utils"
)

func writeSession(t *testing.T, dir, identity string, data SessionData) {
	t.Helper()
	path := filepath.Join(dir, utils.SafeName(identity), "session.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func validSessionData() SessionData {
	return SessionData{
		Identity:    "user@example.com",
		DSID:        "123456",
		OwnerRecord: "_owner123",
		WebServices: WebServices{
			DriveWS: "https://p1-drivews.icloud.com:443",
			DocWS:   "https://p1-docws.icloud.com:443",
			Photos:  "https://p1-photosws.icloud.com:443",
		},
		Cookies: []httpCookie{{Name: "X-APPLE-WEBAUTH-TOKEN", Value: "v", Domain: ".icloud.com", Path: "/"}},
	}
}

func TestLoadSession(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		writeSession(t, dir, "user@example.com", validSessionData())

		s, err := LoadSession(dir, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", s.Identity())
		assert.Equal(t, "_owner123", s.OwnerRecord())
		assert.NotNil(t, s.Drive())
		assert.NotNil(t, s.Photos())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSession(t.TempDir(), "user@example.com")
		assert.Error(t, err)
	})

	t.Run("dsid is mandatory", func(t *testing.T) {
		data := validSessionData()
		data.DSID = ""
		_, err := NewSession(&data)
		assert.ErrorContains(t, err, "dsid")
	})
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing session maps to ErrNoSession", func(t *testing.T) {
		store := NewSessionStore(t.TempDir())
		_, err := store.Drive(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, backup.ErrNoSession)
	})

	t.Run("sessions are cached per identity", func(t *testing.T) {
		dir := t.TempDir()
		writeSession(t, dir, "user@example.com", validSessionData())

		store := NewSessionStore(dir)
		first, err := store.Drive(ctx, "user@example.com")
		require.NoError(t, err)
		second, err := store.Drive(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Same(t, first, second)

		store.Forget("user@example.com")
		third, err := store.Drive(ctx, "user@example.com")
		require.NoError(t, err)
		assert.NotSame(t, first, third)
	})

	t.Run("drive owner comes from the session", func(t *testing.T) {
		dir := t.TempDir()
		writeSession(t, dir, "user@example.com", validSessionData())

		store := NewSessionStore(dir)
		api, err := store.Drive(ctx, "user@example.com")
		require.NoError(t, err)

		owner, err := api.Owner(ctx)
		require.NoError(t, err)
		assert.Equal(t, "_owner123", owner)
	})
}
