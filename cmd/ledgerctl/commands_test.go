package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
)

func TestTokenCmd_MintsVerifiableToken(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://unused")
	t.Setenv("JWT_SECRET", "cli-secret")
	userID := uuid.New()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetArgs([]string{"token", "--user", userID.String()})
	root.SetOut(&out)
	var errOut bytes.Buffer
	root.SetErr(&errOut)

	require.NoError(t, root.Execute())

	claims, err := auth.ValidateToken(string(bytes.TrimSpace(out.Bytes())), "cli-secret")
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestRequiredUserFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://unused")

	for _, name := range []string{"verify", "repair", "token"} {
		root := newRootCmd()
		root.SetArgs([]string{name})
		var sink bytes.Buffer
		root.SetOut(&sink)
		root.SetErr(&sink)
		assert.Error(t, root.Execute(), name)
	}
}

func TestParseUser(t *testing.T) {
	_, err := parseUser("nope")
	assert.Error(t, err)

	id := uuid.New()
	got, err := parseUser(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
