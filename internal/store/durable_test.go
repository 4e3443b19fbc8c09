// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/models"
)

func newMockedStore(t *testing.T) (*sqliteDurableStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLiteDurableStore(db, logger.Nop()), mock
}

// ── Persist ──────────────────────────────────────────────────────────────────

func TestSQLiteDurableStore_Persist_Upserts(t *testing.T) {
	s, mock := newMockedStore(t)

	mock.ExpectExec("INSERT INTO partitions").
		WithArgs(PartitionSettings, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Persist(context.Background(), PartitionSettings, models.DefaultSettings())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDurableStore_Persist_RejectsUnknownPartition(t *testing.T) {
	s, mock := newMockedStore(t)

	err := s.Persist(context.Background(), "credentials", "data")
	assert.ErrorIs(t, err, ErrPartitionNotAllowed)
	assert.NoError(t, mock.ExpectationsWereMet(), "до базы запрос дойти не должен")
}

func TestSQLiteDurableStore_Persist_ExecError(t *testing.T) {
	s, mock := newMockedStore(t)

	mock.ExpectExec("INSERT INTO partitions").
		WillReturnError(sql.ErrConnDone)

	err := s.Persist(context.Background(), PartitionOffline, []models.Mutation{})
	assert.Error(t, err)
}

// ── Rehydrate ────────────────────────────────────────────────────────────────

func TestSQLiteDurableStore_Rehydrate_DecodesState(t *testing.T) {
	s, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT state FROM partitions").
		WithArgs(PartitionSettings).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).
			AddRow([]byte(`{"server_url":"https://erp.example.com","sync_on_cellular":false}`)))

	var settings models.Settings
	require.NoError(t, s.Rehydrate(context.Background(), PartitionSettings, &settings))
	assert.Equal(t, "https://erp.example.com", settings.ServerURL)
	assert.False(t, settings.SyncOnCellular)
}

func TestSQLiteDurableStore_Rehydrate_NotFound(t *testing.T) {
	s, mock := newMockedStore(t)

	mock.ExpectQuery("SELECT state FROM partitions").
		WithArgs(PartitionOffline).
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	var out []models.Mutation
	err := s.Rehydrate(context.Background(), PartitionOffline, &out)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestSQLiteDurableStore_Rehydrate_RejectsUnknownPartition(t *testing.T) {
	s, _ := newMockedStore(t)

	var out any
	err := s.Rehydrate(context.Background(), "sessions", &out)
	assert.ErrorIs(t, err, ErrPartitionNotAllowed)
}

// ── In-memory fallback ───────────────────────────────────────────────────────

func TestMemoryDurableStore_RoundTrip(t *testing.T) {
	s := NewMemoryDurableStore()
	ctx := context.Background()

	in := models.Settings{ServerURL: "https://erp.example.com", SyncOnCellular: true}
	require.NoError(t, s.Persist(ctx, PartitionSettings, in))

	var out models.Settings
	require.NoError(t, s.Rehydrate(ctx, PartitionSettings, &out))
	assert.Equal(t, in, out)
}

func TestMemoryDurableStore_NotFound(t *testing.T) {
	s := NewMemoryDurableStore()

	var out models.Settings
	err := s.Rehydrate(context.Background(), PartitionSettings, &out)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestMemoryDurableStore_EnforcesAllowList(t *testing.T) {
	s := NewMemoryDurableStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Persist(ctx, "credentials", "x"), ErrPartitionNotAllowed)

	var out any
	assert.ErrorIs(t, s.Rehydrate(ctx, "credentials", &out), ErrPartitionNotAllowed)
}
