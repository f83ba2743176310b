package brm

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// ReserveParameters describes one reservation request: reserve amount units
// of currencyPairMetadata's amount currency, on orderSide, at price.
type ReserveParameters struct {
	ConfigurationDescriptor domain.ConfigurationDescriptor
	ExchangeAccountId       domain.ExchangeAccountId
	CurrencyPairMetadata    *domain.CurrencyPairMetadata
	OrderSide               domain.OrderSide
	Price                   decimal.Decimal
	Amount                  decimal.Decimal
}

func (p *ReserveParameters) reservationCurrencyCode() domain.CurrencyCode {
	return p.CurrencyPairMetadata.TradeCode(p.OrderSide, domain.Before)
}

func (p *ReserveParameters) balanceRequest(currencyCode domain.CurrencyCode) domain.BalanceRequest {
	return domain.NewBalanceRequest(p.ConfigurationDescriptor, p.ExchangeAccountId, p.CurrencyPairMetadata.CurrencyPair(), currencyCode)
}

// reservationPreset is the precomputed reservation-currency accounting for a
// reserve attempt: what currency it's booked against, how much that is in
// both the reservation currency and the amount currency, how much of it was
// already "free" thanks to an offsetting derivative position, and its cost.
type reservationPreset struct {
	reservationCurrencyCode        domain.CurrencyCode
	amountInReservationCurrency    decimal.Decimal
	takenFreeAmountInAmountCurrency decimal.Decimal
	costInReservationCurrency      decimal.Decimal
	costInAmountCurrency           decimal.Decimal
}
