package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, subject string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStaticSource(t *testing.T) {
	source := StaticSource{Token: "tok", UserID: 42}

	token, ok := source.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.True(t, source.IsLoggedIn())

	id, ok := source.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestStaticSource_Empty(t *testing.T) {
	source := StaticSource{}

	_, ok := source.AccessToken()
	assert.False(t, ok)
	assert.False(t, source.IsLoggedIn())

	_, ok = source.CurrentUserID()
	assert.False(t, ok)
}

func TestTokenSource_ExtractsUserFromSubject(t *testing.T) {
	source := TokenSource{Token: signedToken(t, "1234")}

	assert.True(t, source.IsLoggedIn())
	id, ok := source.CurrentUserID()
	require.True(t, ok)
	assert.Equal(t, int64(1234), id)
}

func TestTokenSource_RejectsGarbageToken(t *testing.T) {
	source := TokenSource{Token: "not-a-jwt"}

	assert.False(t, source.IsLoggedIn())
	_, ok := source.CurrentUserID()
	assert.False(t, ok)
}

func TestTokenSource_RejectsNonNumericSubject(t *testing.T) {
	source := TokenSource{Token: signedToken(t, "alice")}

	_, ok := source.CurrentUserID()
	assert.False(t, ok)
}
