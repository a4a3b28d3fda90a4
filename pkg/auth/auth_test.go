package auth_test

import (
	"testing"

	"github.com/memg/memg-core/pkg/auth"
	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsCorrectToken(t *testing.T) {
	hash, err := auth.HashToken("secret-token")
	require.NoError(t, err)

	a := auth.New(map[string]string{"u1": hash})
	require.NoError(t, a.Verify("u1", "secret-token"))
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	hash, err := auth.HashToken("secret-token")
	require.NoError(t, err)

	a := auth.New(map[string]string{"u1": hash})
	err = a.Verify("u1", "wrong-token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsUnknownUser(t *testing.T) {
	a := auth.New(map[string]string{})
	err := a.Verify("ghost", "anything")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestExtractBearer(t *testing.T) {
	token, err := auth.ExtractBearer("Bearer abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", token)

	_, err = auth.ExtractBearer("")
	require.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = auth.ExtractBearer("Basic abc123")
	require.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = auth.ExtractBearer("Bearer ")
	require.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, auth.ConstantTimeEqual("abc", "abc"))
	require.False(t, auth.ConstantTimeEqual("abc", "abd"))
}
