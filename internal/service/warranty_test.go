package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

func TestCreateWarranty(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)
	assert.Equal(t, "alice", w.Owner)
	assert.Equal(t, testAdmin, w.Manufacturer)
	assert.Equal(t, int64(100), w.IssuedAt)
	assert.Equal(t, int64(1100), w.ExpiresAt)
	assert.True(t, w.Active)
	assert.Zero(t, w.MaintenanceCount)

	events, err := e.warranties.Events(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "warranty.created", events[0].Action)
}

func TestCreateWarrantyAdminOnly(t *testing.T) {
	e := newEnv(t, 100)
	_, err := e.warranties.Create(context.Background(), "alice", "prod-1", "alice", 1000)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestCreateWarrantyZeroDuration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	// Zero duration is legal: the warranty expires the moment it issues,
	// but a claim filed at that exact instant still lands.
	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, w.IssuedAt, w.ExpiresAt)

	_, err = e.claims.File(ctx, "alice", w.ID, "dead on arrival")
	require.NoError(t, err)
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	// A stranger cannot move it and the owner stays put.
	_, err = e.warranties.Transfer(ctx, "mallory", w.ID, "mallory")
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	got, err := e.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)

	got, err = e.warranties.Transfer(ctx, "alice", w.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Owner)
	assert.Equal(t, int64(1100), got.ExpiresAt)

	// The previous owner lost all standing.
	_, err = e.warranties.Transfer(ctx, "alice", w.ID, "alice")
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestTransferInactiveWarranty(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	_, err = e.warranties.SetActive(ctx, testAdmin, w.ID, false)
	require.NoError(t, err)

	_, err = e.warranties.Transfer(ctx, "alice", w.ID, "bob")
	require.ErrorIs(t, err, domain.ErrExpiredOrInactive)
}

func TestExtendExpiry(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	_, err = e.warranties.Extend(ctx, "alice", w.ID, 500)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	got, err := e.warranties.Extend(ctx, testAdmin, w.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), got.ExpiresAt)

	got, err = e.warranties.Extend(ctx, testAdmin, w.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(2100), got.ExpiresAt)
}

func TestSetActiveReactivates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	got, err := e.warranties.SetActive(ctx, testAdmin, w.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Reactivation is unconditional, even after deactivation.
	got, err = e.warranties.SetActive(ctx, testAdmin, w.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = e.warranties.SetActive(ctx, "alice", w.ID, false)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestRecordMaintenance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	// Any caller may log work; sequence numbers count up from zero.
	r0, err := e.warranties.RecordMaintenance(ctx, "garage-9", w.ID, "oil change")
	require.NoError(t, err)
	assert.Equal(t, int64(0), r0.Seq)
	assert.Equal(t, "garage-9", r0.RecordedBy)

	r1, err := e.warranties.RecordMaintenance(ctx, "alice", w.ID, "brake pads")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.Seq)

	got, err := e.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MaintenanceCount)

	history, err := e.warranties.Maintenance(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "oil change", history[0].Description)

	_, err = e.warranties.SetActive(ctx, testAdmin, w.ID, false)
	require.NoError(t, err)
	_, err = e.warranties.RecordMaintenance(ctx, "garage-9", w.ID, "tires")
	require.ErrorIs(t, err, domain.ErrExpiredOrInactive)
}

func TestMintCertificate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	_, err = e.warranties.MintCertificate(ctx, "alice", w.ID, "ipfs://meta")
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	cert, err := e.warranties.MintCertificate(ctx, testAdmin, w.ID, "ipfs://meta")
	require.NoError(t, err)
	assert.NotEmpty(t, cert.TokenID)
	assert.Equal(t, "ipfs://meta", cert.MetadataURI)

	// One certificate per warranty.
	_, err = e.warranties.MintCertificate(ctx, testAdmin, w.ID, "ipfs://other")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = e.warranties.MintCertificate(ctx, testAdmin, 999, "ipfs://meta")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	_, err = e.warranties.Rate(ctx, "alice", w.ID, 0, "")
	require.ErrorIs(t, err, domain.ErrInvalidClaim)
	_, err = e.warranties.Rate(ctx, "alice", w.ID, 6, "")
	require.ErrorIs(t, err, domain.ErrInvalidClaim)

	_, err = e.warranties.Rate(ctx, "alice", w.ID, 2, "meh")
	require.NoError(t, err)
	_, err = e.warranties.Rate(ctx, "bob", w.ID, 5, "great")
	require.NoError(t, err)
	// Re-rating upserts rather than appending.
	_, err = e.warranties.Rate(ctx, "alice", w.ID, 4, "better now")
	require.NoError(t, err)

	ratings, err := e.warranties.Ratings(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
}

func TestLookupsOnMissingWarranty(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)

	_, err := e.warranties.Get(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.warranties.Maintenance(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.warranties.Events(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.warranties.Ratings(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
