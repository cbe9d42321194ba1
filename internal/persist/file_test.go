package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/internal/model"
)

func TestFileRepositoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orders.json")
	repo := NewFileRepository(path)
	ctx := context.Background()

	order := model.NewOrder("ord-1", "BTCUSDT", model.SideBuy,
		decimal.RequireFromString("20000.12"), decimal.RequireFromString("0.5"))
	order.OrderID = 42
	order.Status = model.StatusPartiallyFilled
	order.ExecutedQty = decimal.RequireFromString("0.1")

	require.NoError(t, repo.WriteSnapshot(ctx, []model.Order{order}))

	got, err := repo.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ord-1", got[0].ClientOrderID)
	require.Equal(t, int64(42), got[0].OrderID)
	require.Equal(t, model.StatusPartiallyFilled, got[0].Status)
	require.True(t, got[0].ExecutedQty.Equal(decimal.RequireFromString("0.1")))
}

func TestFileRepositoryMissingFileIsEmpty(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "absent.json"))
	got, err := repo.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileRepositoryWritesVersionedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	repo := NewFileRepository(path)
	require.NoError(t, repo.WriteSnapshot(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.EqualValues(t, 1, doc["version"])
	require.Contains(t, doc, "lastUpdate")
	require.Contains(t, doc, "orders")
}

func TestFileRepositoryRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileRepository(path).ReadSnapshot(context.Background())
	require.Error(t, err)
}

func TestFileRepositoryLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileRepository(filepath.Join(dir, "orders.json"))
	require.NoError(t, repo.WriteSnapshot(context.Background(), nil))
	require.NoError(t, repo.WriteSnapshot(context.Background(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
