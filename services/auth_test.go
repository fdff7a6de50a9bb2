package services

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/sprint-app/database"
)

func setupAuthService(t *testing.T) (*AuthService, *database.Store) {
	t.Helper()

	db, err := database.InitDBAt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := database.NewStore(db)
	return NewAuthService(store), store
}

func magicToken(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "token=")
	require.NotEqual(t, -1, idx)
	return link[idx+len("token="):]
}

func TestMagicLinkCreatesUserOnFirstLogin(t *testing.T) {
	auth, store := setupAuthService(t)

	link, err := auth.GenerateMagicLink("ada@example.com", "http://localhost:3001")
	require.NoError(t, err)
	assert.Contains(t, link, "/api/auth/magic-link?token=")

	user, err := auth.VerifyMagicLinkToken(magicToken(t, link))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "ada", user.Username)
	assert.NotEmpty(t, user.ID)

	stored, err := store.GetUserByEmail("ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, user.ID, stored.ID)
}

func TestMagicLinkReturnsExistingUser(t *testing.T) {
	auth, store := setupAuthService(t)
	require.NoError(t, store.SaveUser(&database.User{
		ID: "u1", Username: "ada", Email: "ada@example.com",
	}))

	link, err := auth.GenerateMagicLink("ada@example.com", "http://localhost:3001")
	require.NoError(t, err)

	user, err := auth.VerifyMagicLinkToken(magicToken(t, link))
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestMagicLinkTokenIsSingleUse(t *testing.T) {
	auth, _ := setupAuthService(t)

	link, err := auth.GenerateMagicLink("ada@example.com", "http://localhost:3001")
	require.NoError(t, err)
	token := magicToken(t, link)

	_, err = auth.VerifyMagicLinkToken(token)
	require.NoError(t, err)

	_, err = auth.VerifyMagicLinkToken(token)
	assert.Error(t, err)
}

func TestVerifyMagicLinkTokenRejectsUnknown(t *testing.T) {
	auth, _ := setupAuthService(t)

	_, err := auth.VerifyMagicLinkToken("never-issued")
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := setupAuthService(t)
	user := &database.User{ID: "u1", Email: "ada@example.com"}

	token, err := auth.CreateJWT(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, email, err := auth.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "ada@example.com", email)
}

func TestVerifyJWTRejectsGarbage(t *testing.T) {
	auth, _ := setupAuthService(t)

	_, _, err := auth.VerifyJWT("not.a.token")
	assert.Error(t, err)
}

func TestVerifyJWTRejectsForeignSignature(t *testing.T) {
	auth, _ := setupAuthService(t)
	other := &AuthService{jwtSecret: []byte("some-other-secret")}

	token, err := other.CreateJWT(&database.User{ID: "u1", Email: "ada@example.com"})
	require.NoError(t, err)

	_, _, err = auth.VerifyJWT(token)
	assert.Error(t, err)
}
