package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "access-secret-32-chars-long!!!!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, "")

	t.Run("generate and validate access token", func(t *testing.T) {
		token, err := mgr.Generate("runtime-1", []string{"agent-1", "agent-2"}, 15*time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := mgr.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "runtime-1", claims.Subject)
		assert.Equal(t, []string{"agent-1", "agent-2"}, claims.Agents)
		assert.Equal(t, "agentmemory", claims.Issuer)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("other secret fails validation", func(t *testing.T) {
		token, err := NewJWTManager("another-secret-32-chars-long!!!!", "").Generate("x", nil, time.Minute)
		require.NoError(t, err)
		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("other issuer fails validation", func(t *testing.T) {
		token, err := NewJWTManager(testSecret, "someone-else").Generate("x", nil, time.Minute)
		require.NoError(t, err)
		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		token, err := mgr.Generate("runtime-1", []string{"agent-1"}, -1*time.Second)
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}

func TestAccessClaims_Allows(t *testing.T) {
	c := &AccessClaims{Agents: []string{"agent-1"}}
	assert.True(t, c.Allows("agent-1"))
	assert.False(t, c.Allows("agent-2"))

	all := &AccessClaims{Agents: []string{AnyAgent}}
	assert.True(t, all.Allows("agent-2"))

	assert.False(t, (&AccessClaims{}).Allows("agent-1"))
}
