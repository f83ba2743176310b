package brm

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestManager() *Manager {
	return NewManager(fixedClock(time.Unix(0, 0)), zerolog.Nop())
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func spotBTCUSDT() *domain.CurrencyPairMetadata {
	return &domain.CurrencyPairMetadata{
		IsDerivative:     false,
		Base:             "BTC",
		Quote:            "USDT",
		AmountMultiplier: decimal.NewFromInt(1),
		AmountPrecision:  8,
		PricePrecision:   2,
	}
}

// S1 (spot reserve/unreserve): reserving 0.5 BTC at 20000 USDT debits the
// quote balance by exactly amount*price and fully restores it on unreserve.
func TestSpotReserveAndUnreserve(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("20000"))

	params := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("0.5"),
	}

	id, ok := m.TryReserve(params)
	require.True(t, ok)

	balance, ok := m.TryGetAvailableBalance(cfg, exchange, metadata, domain.OrderSideBuy, d("20000"), false, false)
	require.True(t, ok)
	require.True(t, balance.Equal(d("10000")), "expected 10000, got %s", balance)

	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), "USDT")
	require.True(t, m.reservedAmount.GetOrZero(req).Equal(d("0.5")))

	require.NoError(t, m.Unreserve(id, d("0.5"), nil))

	balance, ok = m.TryGetAvailableBalance(cfg, exchange, metadata, domain.OrderSideBuy, d("20000"), false, false)
	require.True(t, ok)
	require.True(t, balance.Equal(d("20000")), "expected full balance restored, got %s", balance)
	require.True(t, m.reservedAmount.GetOrZero(req).IsZero())
}

// S2 (approval accounting): approving part of a reservation splits the
// not-approved remainder from the approved part, and unreserving the
// approved part only touches that part's bookkeeping.
func TestApprovalAccounting(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("20000"))

	params := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("0.5"),
	}
	id, ok := m.TryReserve(params)
	require.True(t, ok)

	clientOrderId := domain.ClientOrderId("o1")
	require.NoError(t, m.ApproveReservation(id, clientOrderId, d("0.2")))

	r := m.reservations.TryGet(id)
	require.NotNil(t, r)
	require.True(t, r.NotApprovedAmount.Equal(d("0.3")))
	part, ok := r.ApprovedParts[clientOrderId]
	require.True(t, ok)
	require.True(t, part.Amount.Equal(d("0.2")))
	require.True(t, part.UnreservedAmount.Equal(d("0.2")))

	require.NoError(t, m.Unreserve(id, d("0.2"), &clientOrderId))

	r = m.reservations.TryGet(id)
	require.NotNil(t, r)
	require.True(t, r.ApprovedParts[clientOrderId].UnreservedAmount.IsZero())

	req := domain.NewBalanceRequest(cfg, exchange, metadata.CurrencyPair(), "USDT")
	require.True(t, m.reservedAmount.GetOrZero(req).Equal(d("0.3")))
}

// S3 (derivative free-amount): a reservation that reduces an open position
// (here, a sell against a long) pays nothing for the portion the position
// already covers.
func TestDerivativeFreeAmountOffsetsCost(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:        true,
		Base:                "BTC",
		Quote:               "USD",
		BalanceCurrencyCode: "BTC",
		AmountMultiplier:    decimal.NewFromInt(1),
		AmountPrecision:     8,
		PricePrecision:      2,
	}

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(10))
	m.SetRawBalance(exchange, "BTC", d("10"))
	m.RegisterMarket(exchange, metadata)

	now := m.clock()
	m.positions.Add(position.Key{ExchangeAccountId: exchange, CurrencyPair: metadata.CurrencyPair()}, d("0.3"), nil, now)

	sellSmall := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideSell,
		Price:                   d("20000"),
		Amount:                  d("0.2"),
	}
	cost, taken := m.calculateReservationCost(sellSmall)
	require.True(t, cost.IsZero(), "expected zero cost, got %s", cost)
	require.True(t, taken.Equal(d("0.2")))

	sellLarge := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideSell,
		Price:                   d("20000"),
		Amount:                  d("0.5"),
	}
	cost, taken = m.calculateReservationCost(sellLarge)
	require.True(t, cost.Equal(d("0.02")), "expected 0.02, got %s", cost)
	require.True(t, taken.Equal(d("0.3")))
}

// S4 (limit binding): a reservation that would push the potential position
// past a configured limit is rejected once it moves further from, rather
// than toward, the limit.
func TestLimitBinding(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("100000"))
	m.RegisterMarket(exchange, metadata)
	m.SetTargetAmountLimit(cfg, exchange, metadata, d("0.4"))

	first := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("0.3"),
	}
	_, ok := m.TryReserve(first)
	require.True(t, ok)

	second := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("0.2"),
	}
	_, ok = m.TryReserve(second)
	require.False(t, ok, "reservation exceeding the limit and moving further from it should be rejected")
}

// Transfer conservation (invariant 4): after a successful transfer between
// two reservations on the same market/side, the sum of their unreserved
// amounts is unchanged.
func TestTransferConservesTotalUnreservedAmount(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("100000"))

	srcParams := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("1"),
	}
	dstParams := &ReserveParameters{
		ConfigurationDescriptor: cfg,
		ExchangeAccountId:       exchange,
		CurrencyPairMetadata:    metadata,
		OrderSide:               domain.OrderSideBuy,
		Price:                   d("20000"),
		Amount:                  d("0.1"),
	}
	srcId, ok := m.TryReserve(srcParams)
	require.True(t, ok)
	dstId, ok := m.TryReserve(dstParams)
	require.True(t, ok)

	srcBefore := m.reservations.TryGet(srcId).UnreservedAmount
	dstBefore := m.reservations.TryGet(dstId).UnreservedAmount
	totalBefore := srcBefore.Add(dstBefore)

	ok, err := m.TryTransferReservation(srcId, dstId, d("0.3"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	dstAfter := m.reservations.TryGet(dstId).UnreservedAmount
	srcReservation := m.reservations.TryGet(srcId)
	srcAfter := decimal.Zero
	if srcReservation != nil {
		srcAfter = srcReservation.UnreservedAmount
	}

	require.True(t, srcAfter.Add(dstAfter).Equal(totalBefore), "expected conservation: %s + %s == %s", srcAfter, dstAfter, totalBefore)
}

// A transfer attempt between reservations from different markets is
// rejected outright, matching ErrTransferSourceMismatch.
func TestTransferRejectsMismatchedSources(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()
	otherMetadata := &domain.CurrencyPairMetadata{Base: "ETH", Quote: "USDT", AmountMultiplier: decimal.NewFromInt(1), AmountPrecision: 8}

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetLeverage(exchange, otherMetadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("100000"))

	srcId, ok := m.TryReserve(&ReserveParameters{
		ConfigurationDescriptor: cfg, ExchangeAccountId: exchange, CurrencyPairMetadata: metadata,
		OrderSide: domain.OrderSideBuy, Price: d("20000"), Amount: d("1"),
	})
	require.True(t, ok)
	dstId, ok := m.TryReserve(&ReserveParameters{
		ConfigurationDescriptor: cfg, ExchangeAccountId: exchange, CurrencyPairMetadata: otherMetadata,
		OrderSide: domain.OrderSideBuy, Price: d("1500"), Amount: d("1"),
	})
	require.True(t, ok)

	_, err := m.TryTransferReservation(srcId, dstId, d("0.1"), nil)
	require.ErrorIs(t, err, ErrTransferSourceMismatch)
}

func TestApproveReservationRejectsDoubleApproval(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("binance", 0)
	metadata := spotBTCUSDT()

	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(1))
	m.SetRawBalance(exchange, "USDT", d("20000"))

	id, ok := m.TryReserve(&ReserveParameters{
		ConfigurationDescriptor: cfg, ExchangeAccountId: exchange, CurrencyPairMetadata: metadata,
		OrderSide: domain.OrderSideBuy, Price: d("20000"), Amount: d("0.5"),
	})
	require.True(t, ok)

	clientOrderId := domain.ClientOrderId("o1")
	require.NoError(t, m.ApproveReservation(id, clientOrderId, d("0.2")))
	require.ErrorIs(t, m.ApproveReservation(id, clientOrderId, d("0.1")), ErrDoubleApproval)
}

func TestUnreserveUnknownReservationToleratesZeroAmount(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.Unreserve(999, decimal.Zero, nil))
	require.ErrorIs(t, m.Unreserve(999, d("1"), nil), ErrUnknownReservation)
}

// A derivative market configured without a balance currency must fail a
// fill rather than settle it against the amount currency instead.
func TestFillRejectsDerivativeWithoutBalanceCurrency(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:     true,
		Base:             "BTC",
		Quote:            "USD",
		AmountMultiplier: decimal.NewFromInt(1),
		AmountPrecision:  8,
		PricePrecision:   2,
	}
	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(10))

	_, err := m.HandlePositionFillAmountChange(domain.OrderSideBuy, nil, d("0.1"), d("20000"), cfg, exchange, metadata, "BTC")
	require.ErrorIs(t, err, ErrMissingBalanceCurrency)
}

// The same missing configuration must also reject a reservation, rather
// than leave a half-created reservation with no corresponding balance
// charge.
func TestTryReserveRejectsDerivativeWithoutBalanceCurrency(t *testing.T) {
	m := newTestManager()
	cfg := domain.NewConfigurationDescriptor("default")
	exchange := domain.NewExchangeAccountId("bitmex", 0)
	metadata := &domain.CurrencyPairMetadata{
		IsDerivative:     true,
		Base:             "BTC",
		Quote:            "USD",
		AmountMultiplier: decimal.NewFromInt(1),
		AmountPrecision:  8,
		PricePrecision:   2,
	}
	m.SetLeverage(exchange, metadata.CurrencyPair(), decimal.NewFromInt(10))

	_, ok := m.TryReserve(&ReserveParameters{
		ConfigurationDescriptor: cfg, ExchangeAccountId: exchange, CurrencyPairMetadata: metadata,
		OrderSide: domain.OrderSideBuy, Price: d("20000"), Amount: d("0.1"),
	})
	require.False(t, ok)
	require.Equal(t, 0, m.reservations.Len(), "failed reservation must not be left in the store")
}
