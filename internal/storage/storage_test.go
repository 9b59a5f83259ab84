package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsoleStore(t *testing.T) {
	store := NewConsoleStore(zap.NewNop())

	err := store.RecordEvent(context.Background(), &MirrorEvent{
		Kind:          EventPlaced,
		SourceOrderID: "s1",
		MirrorOrderID: "m1",
		Contract:      "BTC_USDT",
		Side:          "open_long",
		TriggerPrice:  100000,
		Contracts:     100,
		FinalRatio:    0.1,
		At:            time.Now(),
	})
	assert.NoError(t, err)

	err = store.RecordRatioChange(context.Background(), &RatioAudit{
		Old: 1.0, New: 2.5, By: "operator", DeltaPct: 150, At: time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestPostgresStore_RecordEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := &PostgresStore{db: db, logger: zap.NewNop()}
	defer store.Close()

	mock.ExpectExec("INSERT INTO mirror_events").
		WithArgs("placed", "s1", "m1", "BTC_USDT", "open_long",
			100000.0, int64(100), 0.1, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.RecordEvent(context.Background(), &MirrorEvent{
		Kind:          EventPlaced,
		SourceOrderID: "s1",
		MirrorOrderID: "m1",
		Contract:      "BTC_USDT",
		Side:          "open_long",
		TriggerPrice:  100000,
		Contracts:     100,
		FinalRatio:    0.1,
		At:            time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := &PostgresStore{db: db, logger: zap.NewNop()}
	defer store.Close()

	mock.ExpectExec("INSERT INTO mirror_events").
		WillReturnError(assert.AnError)

	err = store.RecordEvent(context.Background(), &MirrorEvent{Kind: EventCanceled})
	assert.Error(t, err)
}

func TestPostgresStore_RecordRatioChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := &PostgresStore{db: db, logger: zap.NewNop()}
	defer store.Close()

	mock.ExpectExec("INSERT INTO ratio_audit").
		WithArgs(1.0, 2.5, "operator", 150.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.RecordRatioChange(context.Background(), &RatioAudit{
		Old: 1.0, New: 2.5, By: "operator", DeltaPct: 150, At: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
