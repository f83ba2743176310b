package reservation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

func sampleMetadata() *domain.CurrencyPairMetadata {
	return &domain.CurrencyPairMetadata{
		Base:             "BTC",
		Quote:            "USDT",
		AmountMultiplier: decimal.NewFromInt(1),
		AmountPrecision:  8,
	}
}

func TestGetProportionalCostAmountZeroUnreservedReturnsFullCost(t *testing.T) {
	r := &BalanceReservation{Cost: decimal.NewFromInt(100)}
	cost := r.GetProportionalCostAmount(decimal.NewFromInt(1))
	require.True(t, cost.Equal(decimal.NewFromInt(100)))
}

func TestGetProportionalCostAmountScalesByRatio(t *testing.T) {
	r := &BalanceReservation{Cost: decimal.NewFromInt(100), UnreservedAmount: decimal.NewFromInt(4)}
	cost := r.GetProportionalCostAmount(decimal.NewFromInt(1))
	require.True(t, cost.Equal(decimal.NewFromInt(25)), "expected 100*1/4 == 25, got %s", cost)
}

func TestConvertInReservationCurrency(t *testing.T) {
	r := &BalanceReservation{
		CurrencyPairMetadata:    sampleMetadata(),
		ReservationCurrencyCode: "USDT",
		Price:                   decimal.NewFromInt(20000),
	}
	converted := r.ConvertInReservationCurrency(decimal.NewFromFloat(0.5))
	require.True(t, converted.Equal(decimal.NewFromInt(10000)))
}

func TestIdGeneratorIncreasesMonotonically(t *testing.T) {
	var gen IdGenerator
	first := gen.Next()
	second := gen.Next()
	require.Equal(t, Id(1), first)
	require.Equal(t, Id(2), second)
}

func TestStoreAddGetRemove(t *testing.T) {
	store := NewStore()
	r := &BalanceReservation{Amount: decimal.NewFromInt(1)}
	store.Add(1, r)

	got := store.TryGet(1)
	require.NotNil(t, got)
	require.True(t, got.Amount.Equal(decimal.NewFromInt(1)))
	require.Equal(t, 1, store.Len())

	store.Remove(1)
	require.Nil(t, store.TryGet(1))
	require.Equal(t, 0, store.Len())
}

func TestStoreClearAndGetAllRawReservations(t *testing.T) {
	store := NewStore()
	store.Add(1, &BalanceReservation{})
	store.Add(2, &BalanceReservation{})

	all := store.GetAllRawReservations()
	require.Len(t, all, 2)

	store.Clear()
	require.Equal(t, 0, store.Len())
	require.Nil(t, store.TryGet(1))
}

func TestSortedApprovedOrderIds(t *testing.T) {
	r := &BalanceReservation{
		ApprovedParts: map[domain.ClientOrderId]*ApprovedPart{
			"charlie": {},
			"alice":   {},
			"bob":     {},
		},
	}
	ids := r.SortedApprovedOrderIds()
	require.Equal(t, []domain.ClientOrderId{"alice", "bob", "charlie"}, ids)
}
