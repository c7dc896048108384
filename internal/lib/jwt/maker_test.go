package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestMaker_GenerateAndParseToken(t *testing.T) {
	maker := NewMaker(testSecret, 15*time.Minute)

	tests := []struct {
		name      string
		accountID int64
		username  string
		roles     []string
	}{
		{name: "admin", accountID: 1, username: "alice", roles: []string{"ROLE_USER", "ROLE_ADMIN"}},
		{name: "employee", accountID: 42, username: "bob", roles: []string{"ROLE_USER"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.accountID, tt.username, tt.roles)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			id, err := claims.AccountID()
			require.NoError(t, err)
			assert.Equal(t, tt.accountID, id)
			assert.Equal(t, tt.username, claims.Username)
			assert.Equal(t, tt.roles, claims.Roles)
			assert.NotEmpty(t, claims.ID)
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestMaker_TokensAreUnique(t *testing.T) {
	maker := NewMaker(testSecret, time.Minute)

	first, err := maker.GenerateToken(1, "alice", nil)
	require.NoError(t, err)
	second, err := maker.GenerateToken(1, "alice", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestMaker_ParseToken_Invalid(t *testing.T) {
	maker := NewMaker(testSecret, 15*time.Minute)
	valid, err := maker.GenerateToken(1, "alice", []string{"ROLE_USER"})
	require.NoError(t, err)

	expired, err := NewMaker(testSecret, -time.Hour).GenerateToken(1, "alice", nil)
	require.NoError(t, err)

	foreign, err := NewMaker("other_secret", time.Hour).GenerateToken(1, "alice", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "invalid.token.here"},
		{name: "expired token", token: expired},
		{name: "wrong secret key", token: foreign},
		{name: "tampered token", token: valid + "tampered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestClaims_AccountID_BadSubject(t *testing.T) {
	c := &Claims{}
	c.Subject = "not-a-number"

	_, err := c.AccountID()
	assert.ErrorIs(t, err, ErrInvalidToken)
}
