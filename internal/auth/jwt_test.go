package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func TestGenerateAndValidateToken(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestValidateToken(t *testing.T) {
	userID := uuid.New()

	validToken, err := GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)

	expiredToken, err := GenerateToken(userID, testSecret, -time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: userID.String(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		secret    string
		wantErrIs error
	}{
		{"expired token", expiredToken, testSecret, jwt.ErrTokenExpired},
		{"wrong secret", validToken, "wrong-secret", jwt.ErrTokenSignatureInvalid},
		{"malformed token", "not.a.valid.jwt", testSecret, jwt.ErrTokenMalformed},
		{"empty token", "", testSecret, jwt.ErrTokenMalformed},
		{"missing expiry", noExpiry, testSecret, jwt.ErrTokenRequiredClaimMissing},
		{"subject not a uuid", badSubject, testSecret, ErrInvalidSubject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateToken(tc.token, tc.secret)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErrIs)
		})
	}
}

func TestValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateToken(none, testSecret)
	require.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ValidateToken(hs512, testSecret)
	require.Error(t, err)
}

func TestValidServiceToken(t *testing.T) {
	assert.True(t, ValidServiceToken("svc-token", "svc-token"))
	assert.False(t, ValidServiceToken("svc-tokeN", "svc-token"))
	assert.False(t, ValidServiceToken("", "svc-token"))
	assert.False(t, ValidServiceToken("", ""))
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	_, ok := UserIDFromContext(ctx)
	assert.False(t, ok)
	assert.False(t, IsService(ctx))

	id := uuid.New()
	ctx = ContextWithService(ContextWithUserID(ctx, id))
	got, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.True(t, IsService(ctx))
}
