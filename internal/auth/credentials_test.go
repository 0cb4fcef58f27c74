package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialValid(t *testing.T) {
	assert.False(t, Credential{}.Valid())
	assert.True(t, Credential{Token: "tok"}.Valid())
	assert.True(t, Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}.Valid())
	assert.False(t, Credential{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}.Valid())
}

func TestFileSourceJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	content := `{"token": "file-token", "user_id": "u-1"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	src := NewFileSource(path, "")
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file-token", cred.Token)
	assert.Equal(t, "u-1", cred.UserID)
}

func TestFileSourcePlainTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("raw-token\n"), 0o600))

	src := NewFileSource(path, "")
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "raw-token", cred.Token)
}

func TestFileSourceInlineFallback(t *testing.T) {
	src := NewFileSource("", " inline-token ")
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inline-token", cred.Token)
}

func TestFileSourceMissingFileNoInline(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent"), "")
	_, err := src.Credential(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFileSourceExpiredFileFallsBackToInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	content := `{"token": "stale", "expires_at": "2020-01-01T00:00:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	src := NewFileSource(path, "fresh-inline")
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-inline", cred.Token)
}

func TestFileSourceRereadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o600))

	src := NewFileSource(path, "")
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", cred.Token)

	// A newer mod time invalidates the cached parse.
	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	cred, err = src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", cred.Token)
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{Cred: Credential{Token: "static"}}
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", cred.Token)

	_, err = StaticSource{}.Credential(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}
