package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Europeia/eurocore/internal/apierr"
)

func TestInsertAndGetRmbPostJob(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	job, err := db.InsertRmbPostJob(ctx, "testlandia", "the_east_pacific", "hello")
	require.NoError(t, err)
	require.Equal(t, StatusQueued, job.Status)

	got, err := db.GetRmbPostJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "testlandia", got.Nation)
}

func TestGetRmbPostJobNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRmbPostJob(context.Background(), 999)
	require.ErrorIs(t, err, apierr.ErrJobNotFound)
}

func TestRmbPostJobTerminatesOnceOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	job, err := db.InsertRmbPostJob(ctx, "testlandia", "the_east_pacific", "hello")
	require.NoError(t, err)

	require.NoError(t, db.UpdateRmbPostJobError(ctx, job.ID, "nationstates: not authenticated"))

	got, err := db.GetRmbPostJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, got.Status)
	require.True(t, got.Error.Valid)
	require.False(t, got.RmbPostID.Valid)
}
