package tokenstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantor/pkg/oauth"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func testIdentity() []byte {
	return []byte("alice-host")
}

func testToken() *oauth.Token {
	return &oauth.Token{
		AccessToken:  "AT",
		TokenType:    "Bearer",
		RefreshToken: "RT",
		Scopes:       []string{"read", "write"},
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestStoreSetGet(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"), KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)

	want := testToken()
	require.NoError(t, store.Set("alice", "github", want))

	got, err := store.Get("alice", "github")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.Scopes, got.Scopes)
}

func TestStoreGetAbsent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"), KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)

	got, err := store.Get("nobody", "nowhere")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := Open(path, KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))
	require.NoError(t, store.Set("alice", "gitlab", testToken()))
	require.NoError(t, store.Set("bob", "github", testToken()))
	require.NoError(t, store.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Open(path, KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)

	got, err := reloaded.Get("alice", "github")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AT", got.AccessToken)

	assert.Equal(t, []string{"github", "gitlab"}, reloaded.GetApplications("alice"))
	assert.Equal(t, []string{"alice", "bob"}, reloaded.Users())
}

func TestStoreWrongKeyIsIntegrityError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := Open(path, KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))
	require.NoError(t, store.Save())

	otherKey := bytes.Repeat([]byte{0x99}, KeySize)
	reloaded, err := Open(path, KeySource{Key: otherKey}, testIdentity())
	require.NoError(t, err, "loading does not decrypt")

	_, err = reloaded.Get("alice", "github")
	var ie *oauth.IntegrityError
	require.True(t, errors.As(err, &ie), "wrong key must surface as IntegrityError, got %v", err)
}

func TestStoreAADBindsEntryToUser(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"), KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))

	// Re-home alice's ciphertext under mallory. Decryption must fail
	// because the AAD no longer matches.
	store.mu.Lock()
	store.entries["mallory"] = map[string][]byte{"github": store.entries["alice"]["github"]}
	store.mu.Unlock()

	_, err = store.Get("mallory", "github")
	var ie *oauth.IntegrityError
	require.True(t, errors.As(err, &ie))
}

func TestStoreAADBindsFileToIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := Open(path, KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))
	require.NoError(t, store.Save())

	// The same file and the same key under a different OS identity
	// must not decrypt.
	stolen, err := Open(path, KeySource{Key: testKey()}, []byte("mallory-host"))
	require.NoError(t, err, "loading does not decrypt")

	_, err = stolen.Get("alice", "github")
	var ie *oauth.IntegrityError
	require.True(t, errors.As(err, &ie), "foreign identity must surface as IntegrityError, got %v", err)
}

func TestStoreMalformedFileIsNotIntegrityError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Open(path, KeySource{Key: testKey()}, testIdentity())
	require.Error(t, err)
	var ie *oauth.IntegrityError
	assert.False(t, errors.As(err, &ie), "a torn file is an ordinary error")
}

func TestStoreDelete(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tokens.json"), KeySource{Key: testKey()}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))

	assert.True(t, store.Delete("alice", "github"))
	assert.False(t, store.Delete("alice", "github"))

	got, err := store.Get("alice", "github")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorePassphraseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := Open(path, KeySource{Passphrase: "correct horse battery staple"}, testIdentity())
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", "github", testToken()))
	require.NoError(t, store.Save())

	reloaded, err := Open(path, KeySource{Passphrase: "correct horse battery staple"}, testIdentity())
	require.NoError(t, err)
	got, err := reloaded.Get("alice", "github")
	require.NoError(t, err)
	require.NotNil(t, got)

	wrong, err := Open(path, KeySource{Passphrase: "incorrect horse"}, testIdentity())
	require.NoError(t, err)
	_, err = wrong.Get("alice", "github")
	var ie *oauth.IntegrityError
	require.True(t, errors.As(err, &ie))
}

func TestStoreNoKeyMaterial(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "tokens.json"), KeySource{}, testIdentity())
	assert.True(t, errors.Is(err, oauth.ErrInvalidArgument))
}

func TestCipherRoundTripWithUnicodeSecrets(t *testing.T) {
	cipher, err := NewCipher(testKey())
	require.NoError(t, err)

	// Secrets are raw UTF-8 on both sides of the cipher.
	plaintext := []byte("tök€n-вал-秘密")
	aad := []byte("alice")

	sealed, err := cipher.Encrypt(plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := cipher.Decrypt(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	// Encryption is randomized; two seals of the same plaintext differ.
	sealed2, err := cipher.Encrypt(plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestCipherShortCiphertext(t *testing.T) {
	cipher, err := NewCipher(testKey())
	require.NoError(t, err)

	_, err = cipher.Decrypt([]byte("short"), nil)
	require.Error(t, err)
	var ie *oauth.IntegrityError
	assert.False(t, errors.As(err, &ie), "truncation below nonce size is malformed, not tampered")
}

func TestDeriveKeyNormalization(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	// NFC "é" (U+00E9) and NFD "e" + combining acute normalize to the
	// same NFKC form and must derive the same key.
	k1, err := DeriveKey("café", salt)
	require.NoError(t, err)
	k2, err := DeriveKey("café", salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := DeriveKey("café", bytes.Repeat([]byte{0x02}, SaltSize))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "different salt must derive a different key")
}

func TestNewCipherBadKeySize(t *testing.T) {
	_, err := NewCipher([]byte("too short"))
	assert.True(t, errors.Is(err, oauth.ErrInvalidArgument))
}
