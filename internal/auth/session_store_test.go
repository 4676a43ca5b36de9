package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
)

func newTestStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, NewJWTService("test-secret", time.Hour)), mr
}

func TestSessionStore_IssueValidate(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	user := testUser()

	token, err := store.Issue(ctx, user)
	require.NoError(t, err)

	identity, err := store.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, user.Email, identity.Email)
	assert.Equal(t, model.RoleUser, identity.Role)

	members, err := mr.SMembers(userSessionsKey(user.ID.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{identity.TokenID}, members)
	assert.True(t, mr.Exists(sessionKey(identity.TokenID)))
	assert.Greater(t, mr.TTL(sessionKey(identity.TokenID)), time.Duration(0))
}

func TestSessionStore_ValidateRejects(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Validate(ctx, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	// Correctly signed but never stored.
	_, token, _, err := store.jwt.GenerateToken(testUser())
	require.NoError(t, err)
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestSessionStore_RevokeIsIdempotent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	user := testUser()

	token, err := store.Issue(ctx, user)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	assert.False(t, mr.Exists(userSessionsKey(user.ID.String())))

	assert.NoError(t, store.Revoke(ctx, token))
	assert.NoError(t, store.Revoke(ctx, "unknown-token"))
	assert.NoError(t, store.Revoke(ctx, ""))
}

func TestSessionStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	user := testUser()

	token, err := store.Issue(ctx, user)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestSessionStore_SweepsStaleMembers(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	user := testUser()

	first, err := store.Issue(ctx, user)
	require.NoError(t, err)
	firstIdentity, err := store.Validate(ctx, first)
	require.NoError(t, err)

	// Session key gone while the set still lists it.
	mr.Del(sessionKey(firstIdentity.TokenID))

	_, err = store.Issue(ctx, user)
	require.NoError(t, err)

	members, err := mr.SMembers(userSessionsKey(user.ID.String()))
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.NotContains(t, members, firstIdentity.TokenID)
}

func TestSessionStore_RevokeAll(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := testUser()
	other := testUser()

	tokenA, err := store.Issue(ctx, user)
	require.NoError(t, err)
	tokenB, err := store.Issue(ctx, user)
	require.NoError(t, err)
	otherToken, err := store.Issue(ctx, other)
	require.NoError(t, err)

	n, err := store.ActiveSessions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.RevokeAll(ctx, user.ID))

	for _, token := range []string{tokenA, tokenB} {
		_, err := store.Validate(ctx, token)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	}
	_, err = store.Validate(ctx, otherToken)
	assert.NoError(t, err)

	n, err = store.ActiveSessions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSessionStore_StoreDown(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, testUser())
	require.NoError(t, err)
	mr.Close()

	_, err = store.Validate(ctx, token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidCredential)
}
