package submissions

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestRecordAssignsIDAndPersists(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	row, err := store.Record(ctx, LiquidationSubmission{
		Builder:         "flashbots",
		User:            "0xalice",
		CollateralAsset: "0xweth",
		DebtAsset:       "0xusdc",
		ExpectedProfit:  42.5,
		Nonce:           7,
		TargetBlock:     12345,
		BundleHash:      "0xbundle",
		Success:         true,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, row.ID)

	rows, err := store.ListByUser(ctx, "0xalice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "flashbots", rows[0].Builder)
}

func TestListFailedOnlyReturnsUnsuccessful(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	_, err := store.Record(ctx, LiquidationSubmission{Builder: "b1", User: "0xa", Success: true})
	require.NoError(t, err)
	_, err = store.Record(ctx, LiquidationSubmission{Builder: "b1", User: "0xa", Success: false, ErrorMessage: "reverted"})
	require.NoError(t, err)

	failed, err := store.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "reverted", failed[0].ErrorMessage)
}

func TestListByBuilderFiltersCorrectly(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	_, err := store.Record(ctx, LiquidationSubmission{Builder: "b1", User: "0xa"})
	require.NoError(t, err)
	_, err = store.Record(ctx, LiquidationSubmission{Builder: "b2", User: "0xa"})
	require.NoError(t, err)

	rows, err := store.ListByBuilder(ctx, "b2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "b2", rows[0].Builder)
}
