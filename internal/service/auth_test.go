package service

import (
	"context"
	"testing"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUp_CreatesZeroProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	age := 9

	session, err := f.auth.SignUp(ctx, " Kid@Example.com ", "password1", domain.SignUpAttributes{Name: "Kid", Age: &age})
	require.NoError(t, err)
	assert.True(t, session.Valid())
	assert.Equal(t, "kid@example.com", session.Email)

	profile, err := f.ledger.GetProfile(ctx, session.UserID)
	require.NoError(t, err)
	assert.True(t, profile.Totals.IsZero())
	assert.Equal(t, "Kid", profile.Name)
	require.NotNil(t, profile.Age)
	assert.Equal(t, 9, *profile.Age)
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.SignUp(ctx, "not-an-email", "password1", domain.SignUpAttributes{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.auth.SignUp(ctx, "kid@example.com", "short", domain.SignUpAttributes{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	f.signUp(t, "kid@example.com")
	_, err = f.auth.SignUp(ctx, "kid@example.com", "password1", domain.SignUpAttributes{})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.signUp(t, "kid@example.com")

	session, err := f.auth.SignIn(ctx, "kid@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)

	got, err := f.auth.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)

	_, err = f.auth.SignIn(ctx, "kid@example.com", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.auth.SignIn(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSignIn_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "kid@example.com")

	for i := 0; i < 5; i++ {
		_, err := f.auth.SignIn(ctx, "kid@example.com", "wrong-password")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err := f.auth.SignIn(ctx, "kid@example.com", "password1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "kid@example.com")
	session, err := f.auth.SignIn(ctx, "kid@example.com", "password1")
	require.NoError(t, err)

	require.NoError(t, f.auth.SignOut(ctx, session.Token))

	_, err = f.auth.GetSession(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.auth.GetSession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSignOutEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signUp(t, "kid@example.com")
	first, err := f.auth.SignIn(ctx, "kid@example.com", "password1")
	require.NoError(t, err)
	second, err := f.auth.SignIn(ctx, "kid@example.com", "password1")
	require.NoError(t, err)
	f.signUp(t, "friend@example.com")
	friend, err := f.auth.SignIn(ctx, "friend@example.com", "password1")
	require.NoError(t, err)

	require.NoError(t, f.auth.SignOutEverywhere(ctx, first.UserID))

	_, err = f.auth.GetSession(ctx, first.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.auth.GetSession(ctx, second.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.auth.GetSession(ctx, friend.Token)
	assert.NoError(t, err)
}
