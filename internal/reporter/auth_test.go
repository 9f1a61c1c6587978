package reporter

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthHeader_NoSecretMeansNoHeader(t *testing.T) {
	headers, err := buildAuthHeader(AuthConfig{})
	require.NoError(t, err)
	assert.Empty(t, headers.Get("Authorization"))
}

func TestBuildAuthHeader_SignsClaims(t *testing.T) {
	secret := "s3cr3t"
	username := "monitoring-bot"
	group := "sre"
	headers, err := buildAuthHeader(AuthConfig{
		Secret:               &secret,
		JWTPreferredUsername: &username,
		JWTGroup:             &group,
	})
	require.NoError(t, err)

	auth := headers.Get("Authorization")
	require.True(t, strings.HasPrefix(auth, "Bearer "))
	tokenStr := strings.TrimPrefix(auth, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, username, claims["preferred_username"])
	groups, ok := claims["groups"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, group, groups[0])
}

func TestBuildAuthHeader_OmitsUnsetClaims(t *testing.T) {
	secret := "s3cr3t"
	headers, err := buildAuthHeader(AuthConfig{Secret: &secret})
	require.NoError(t, err)
	auth := headers.Get("Authorization")
	tokenStr := strings.TrimPrefix(auth, "Bearer ")

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	_, hasUsername := claims["preferred_username"]
	assert.False(t, hasUsername)
}
