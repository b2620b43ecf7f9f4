package util

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT(t *testing.T) {
	t.Run("Should round-trip the subject", func(t *testing.T) {
		tok, err := GenerateJWT("user-1", "s3cret", time.Hour)
		require.NoError(t, err)

		sub, err := ParseJWT(tok, "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "user-1", sub)
	})

	t.Run("Should reject a token signed with another secret", func(t *testing.T) {
		tok, err := GenerateJWT("user-1", "s3cret", time.Hour)
		require.NoError(t, err)

		_, err = ParseJWT(tok, "other")
		assert.Error(t, err)
	})

	t.Run("Should reject an expired token", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)

		_, err = ParseJWT(tok, "s3cret")
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("Should reject a token without subject", func(t *testing.T) {
		claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)

		_, err = ParseJWT(tok, "s3cret")
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("Should reject the none algorithm", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ParseJWT(tok, "s3cret")
		assert.Error(t, err)
	})
}

func TestExtractToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, ExtractToken(r), header)
	}
}
