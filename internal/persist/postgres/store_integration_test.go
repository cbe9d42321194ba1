package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/persist/migrations"
	pgstore "github.com/coachpo/orderdesk/internal/persist/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv("ORDERDESK_PG_TESTS") == "" {
		t.Skip("set ORDERDESK_PG_TESTS=1 to run postgres contract tests")
	}
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "orderdesk"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:secret@%s:%s/orderdesk?sslmode=disable", host, port.Port())
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, migrations.Apply(ctx, dsn, "", nil))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	store := pgstore.New(pool)
	defer store.Close()

	first := model.NewOrder("ord-1", "BTCUSDT", model.SideBuy,
		decimal.RequireFromString("20000.12"), decimal.RequireFromString("0.5"))
	first.OrderID = 1
	first.Time = 100
	second := model.NewOrder("ord-2", "BTCUSDT", model.SideSell,
		decimal.RequireFromString("21000"), decimal.RequireFromString("0.25"))
	second.OrderID = 2
	second.Time = 200

	require.NoError(t, store.WriteSnapshot(ctx, []model.Order{first, second}))

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ord-1", got[0].ClientOrderID)
	require.True(t, got[0].Price.Equal(first.Price))
	require.Equal(t, model.SideSell, got[1].Side)

	// The next snapshot drops ord-1; the stored state must follow.
	second.Status = model.StatusFilled
	second.ExecutedQty = second.OrigQty
	require.NoError(t, store.WriteSnapshot(ctx, []model.Order{second}))

	got, err = store.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ord-2", got[0].ClientOrderID)
	require.Equal(t, model.StatusFilled, got[0].Status)
	require.True(t, got[0].ExecutedQty.Equal(second.OrigQty))
}

func TestStoreEmptySnapshotClearsTable(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, migrations.Apply(ctx, dsn, "", nil))

	store, err := pgstore.Connect(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	order := model.NewOrder("ord-1", "BTCUSDT", model.SideBuy,
		decimal.NewFromInt(100), decimal.NewFromInt(1))
	require.NoError(t, store.WriteSnapshot(ctx, []model.Order{order}))
	require.NoError(t, store.WriteSnapshot(ctx, nil))

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}
