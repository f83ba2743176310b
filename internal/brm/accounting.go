package brm

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/reservation"
)

// addReservedAmount is the shared bookkeeping step behind reserve, unreserve
// and transfer: it moves a reservation's unreserved_amount by diff and, when
// updateBalance is set, charges or refunds the proportional slice of the
// reservation's cost against the virtual balance. It also bumps the global
// reserved-amount tree entry for the reservation's own currency, which is
// the figure every other balance query reads.
func (m *Manager) addReservedAmount(req domain.BalanceRequest, id reservation.Id, diff decimal.Decimal, updateBalance bool) (bool, error) {
	r := m.reservations.TryGet(id)
	if r == nil {
		return false, nil
	}
	return m.addReservedAmountByReservation(req, r, diff, updateBalance)
}

func (m *Manager) addReservedAmountByReservation(req domain.BalanceRequest, r *reservation.BalanceReservation, diff decimal.Decimal, updateBalance bool) (bool, error) {
	if updateBalance {
		cost := r.GetProportionalCostAmount(diff)
		if err := m.addVirtualBalance(req, r.CurrencyPairMetadata, r.Price, cost.Neg()); err != nil {
			return false, err
		}
	}

	r.UnreservedAmount = r.UnreservedAmount.Add(diff)

	resReq := domain.NewBalanceRequest(req.ConfigurationDescriptor, req.ExchangeAccountId, req.CurrencyPair, r.ReservationCurrencyCode)
	m.reservedAmount.Add(resReq, diff)
	return true, nil
}

// requireBalanceCurrency resolves the currency a derivative market settles
// in, failing instead of falling back to the amount currency when the
// market was never given one.
func requireBalanceCurrency(metadata *domain.CurrencyPairMetadata) (domain.CurrencyCode, error) {
	if metadata.IsDerivative && metadata.BalanceCurrencyCode == "" {
		return "", ErrMissingBalanceCurrency
	}
	return metadata.BalanceCurrency(), nil
}

// addVirtualBalance applies a balance-currency-denominated diff (expressed
// in amount currency) to the virtual balance ledger, converting through the
// derivative's balance currency when the market needs it. Returns
// ErrMissingBalanceCurrency for a derivative market with no balance
// currency configured, rather than settling against the wrong currency.
func (m *Manager) addVirtualBalance(req domain.BalanceRequest, metadata *domain.CurrencyPairMetadata, price decimal.Decimal, diffInAmountCurrency decimal.Decimal) error {
	if !metadata.IsDerivative {
		diffInRequestCurrency := metadata.FromAmountCurrency(req.CurrencyCode, diffInAmountCurrency, price)
		m.balances.AddBalance(req, diffInRequestCurrency)
		return nil
	}

	balanceCurrency, err := requireBalanceCurrency(metadata)
	if err != nil {
		return err
	}

	balanceCurrencyReq := domain.NewBalanceRequest(req.ConfigurationDescriptor, req.ExchangeAccountId, req.CurrencyPair, balanceCurrency)
	diffInBalanceCurrency := metadata.FromAmountCurrency(balanceCurrencyReq.CurrencyCode, diffInAmountCurrency, price)
	m.balances.AddBalance(balanceCurrencyReq, diffInBalanceCurrency)
	return nil
}
