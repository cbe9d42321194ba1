package state

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/internal/model"
)

func testOrder(clientID string, orderID int64, status model.Status) model.Order {
	o := model.NewOrder(clientID, "BTCUSDT", model.SideBuy,
		decimal.RequireFromString("20000"), decimal.RequireFromString("0.5"))
	o.OrderID = orderID
	o.Status = status
	o.Time = orderID
	return o
}

func TestStoreDualKeyLookup(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("ord-1", 42, model.StatusNew)))

	byClient, ok := s.GetByClientID("ord-1")
	require.True(t, ok)
	byExchange, ok2 := s.GetByOrderID(42)
	require.True(t, ok2)
	require.Equal(t, byClient, byExchange)
}

func TestStoreRejectsMissingClientID(t *testing.T) {
	s := NewStore()
	err := s.Put(model.Order{OrderID: 7})
	require.Error(t, err)
}

func TestStoreResolvePrefersNumericOrderID(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("123", 99, model.StatusNew)))
	require.NoError(t, s.Put(testOrder("other", 123, model.StatusNew)))

	// "123" parses as an integer, so the exchange order id wins.
	got, ok := s.Resolve("123")
	require.True(t, ok)
	require.Equal(t, "other", got.ClientOrderID)

	// Non-numeric keys fall through to the client id index.
	got, ok = s.Resolve("other")
	require.True(t, ok)
	require.Equal(t, int64(123), got.OrderID)
}

func TestStoreResolveFallsBackToClientID(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("555", 0, model.StatusPendingNew)))

	got, ok := s.Resolve("555")
	require.True(t, ok)
	require.Equal(t, "555", got.ClientOrderID)
}

func TestStoreListOpenExcludesTerminal(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("a", 1, model.StatusNew)))
	require.NoError(t, s.Put(testOrder("b", 2, model.StatusPartiallyFilled)))
	require.NoError(t, s.Put(testOrder("c", 3, model.StatusFilled)))
	require.NoError(t, s.Put(testOrder("d", 4, model.StatusCanceled)))

	open := s.ListOpen()
	require.Len(t, open, 2)
	require.Equal(t, "a", open[0].ClientOrderID)
	require.Equal(t, "b", open[1].ClientOrderID)
}

func TestStorePruneTerminalRetainsActive(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("a", 1, model.StatusNew)))
	require.NoError(t, s.Put(testOrder("b", 2, model.StatusFilled)))
	require.NoError(t, s.Put(testOrder("c", 3, model.StatusExpired)))

	require.Equal(t, 2, s.PruneTerminal())
	require.Equal(t, 1, s.Len())
	_, ok := s.GetByOrderID(2)
	require.False(t, ok)
}

func TestStoreAssignsExchangeIDOnce(t *testing.T) {
	s := NewStore()
	pending := testOrder("ord-1", 0, model.StatusPendingNew)
	require.NoError(t, s.Put(pending))

	acked := pending
	acked.OrderID = 77
	acked.Status = model.StatusNew
	require.NoError(t, s.Put(acked))

	got, ok := s.GetByOrderID(77)
	require.True(t, ok)
	require.Equal(t, model.StatusNew, got.Status)

	// Once assigned the exchange id never changes.
	remapped := acked
	remapped.OrderID = 78
	require.Error(t, s.Put(remapped))
	_, ok = s.GetByOrderID(78)
	require.False(t, ok)
	got, _ = s.GetByOrderID(77)
	require.Equal(t, model.StatusNew, got.Status)
}

func TestStorePutKeepsAssignedExchangeID(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("ord-1", 77, model.StatusNew)))

	// An update without the exchange id, as after a local-only state change,
	// must not lose the mapping.
	update := testOrder("ord-1", 0, model.StatusCanceled)
	require.NoError(t, s.Put(update))

	got, ok := s.GetByOrderID(77)
	require.True(t, ok)
	require.Equal(t, model.StatusCanceled, got.Status)
	require.Equal(t, int64(77), got.OrderID)
}

func TestStoreLoadReplacesContents(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("stale", 1, model.StatusNew)))

	require.NoError(t, s.Load([]model.Order{
		testOrder("a", 10, model.StatusNew),
		testOrder("b", 11, model.StatusFilled),
	}))
	require.Equal(t, 2, s.Len())
	_, ok := s.GetByClientID("stale")
	require.False(t, ok)
	_, ok = s.GetByOrderID(10)
	require.True(t, ok)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testOrder("ord-1", 1, model.StatusNew)))

	got, _ := s.GetByClientID("ord-1")
	got.Status = model.StatusCanceled

	again, _ := s.GetByClientID("ord-1")
	require.Equal(t, model.StatusNew, again.Status)
}
