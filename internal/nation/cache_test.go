package nation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNations(t *testing.T) {
	got, err := Parse("testlandia:pw1, Atlantium:pw2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"testlandia": "pw1", "atlantium": "pw2"}, got)
}

func TestParseNationsDuplicateLastWins(t *testing.T) {
	got, err := Parse("testlandia:pw1,testlandia:pw2")
	require.NoError(t, err)
	assert.Equal(t, "pw2", got["testlandia"])
}

func TestParseNationsRejectsMalformedEntry(t *testing.T) {
	_, err := Parse("testlandia")
	assert.Error(t, err)
}

func TestCacheGetPasswordUnknownNation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := Start(ctx, map[string]string{"testlandia": "pw"})
	_, err := c.GetPassword(ctx, "atlantium")
	assert.ErrorIs(t, err, ErrInvalidNation)
}

func TestCacheSetPinThenGetPin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := Start(ctx, map[string]string{"testlandia": "pw"})

	pin, err := c.GetPin(ctx, "testlandia")
	require.NoError(t, err)
	assert.Equal(t, "", pin)

	require.NoError(t, c.SetPin(ctx, "TestLandia", "abc123"))

	pin, err = c.GetPin(ctx, "testlandia")
	require.NoError(t, err)
	assert.Equal(t, "abc123", pin)
}

func TestCacheListNations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := Start(ctx, map[string]string{"testlandia": "pw", "atlantium": "pw2"})
	names := c.ListNations(ctx)
	assert.ElementsMatch(t, []string{"testlandia", "atlantium"}, names)
}
