package brm

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/position"
	"github.com/mmbcore/engine/internal/reservation"
)

// CanReserve reports whether p would succeed without actually reserving
// anything — the dry-run strategies use before committing to an order.
func (m *Manager) CanReserve(p *ReserveParameters) bool {
	ok, _, _ := m.canReserveCore(p)
	return ok
}

// TryReserve attempts to reserve p.Amount of p.CurrencyPairMetadata's amount
// currency for p.OrderSide at p.Price. On success it returns the new
// reservation's id and true; on failure it returns false with no side
// effects.
func (m *Manager) TryReserve(p *ReserveParameters) (reservation.Id, bool) {
	ok, preset, _ := m.canReserveCore(p)
	if !ok {
		return 0, false
	}

	req := p.balanceRequest(preset.reservationCurrencyCode)

	r := &reservation.BalanceReservation{
		ConfigurationDescriptor: p.ConfigurationDescriptor,
		ExchangeAccountId:       p.ExchangeAccountId,
		CurrencyPairMetadata:    p.CurrencyPairMetadata,
		OrderSide:               p.OrderSide,
		Price:                   p.Price,
		Amount:                  p.Amount,
		TakenFreeAmount:         preset.takenFreeAmountInAmountCurrency,
		Cost:                    preset.costInAmountCurrency,
		ReservationCurrencyCode: preset.reservationCurrencyCode,
		NotApprovedAmount:       p.Amount,
		ApprovedParts:           make(map[domain.ClientOrderId]*reservation.ApprovedPart),
	}

	id := m.idGen.Next()
	m.reservations.Add(id, r)
	// unreserved_amount starts at zero, so GetProportionalCostAmount takes
	// the zero-unreserved branch and charges the preset's full cost in one
	// shot — this is the only place that happens.
	if _, err := m.addReservedAmount(req, id, p.Amount, true); err != nil {
		m.log.Error().Err(err).Str("pair", p.CurrencyPairMetadata.CurrencyPair().String()).Msg("brm: failed to reserve")
		m.reservations.Remove(id)
		return 0, false
	}

	return id, true
}

// TryReserveMultiple attempts to reserve every element of params as one
// all-or-nothing batch: if any reservation fails, every reservation already
// made in this call is rolled back via Unreserve and the whole batch fails.
func (m *Manager) TryReserveMultiple(params []*ReserveParameters) ([]reservation.Id, bool) {
	ids := make([]reservation.Id, 0, len(params))
	for _, p := range params {
		id, ok := m.TryReserve(p)
		if !ok {
			for i, doneId := range ids {
				_ = m.Unreserve(doneId, params[i].Amount, nil)
			}
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// canReserveCore is the shared preflight for CanReserve/TryReserve: price
// the reservation, check it against the amount limit, then confirm the
// resulting balance (rounded to the symbol margin) wouldn't go negative.
func (m *Manager) canReserveCore(p *ReserveParameters) (bool, reservationPreset, decimal.Decimal) {
	preset := m.getCurrencyCodeAndReservationAmount(p)

	// includeFreeAmount=false: the preset already accounted for any
	// offsetting position via calculateReservationCost, so folding it in
	// again here would count it twice.
	oldBalance := m.getAvailableBalance(p, false)
	newBalance := oldBalance.Sub(preset.costInReservationCurrency)

	potentialPosition, fits := m.canReserveWithLimit(p)
	if !fits {
		return false, preset, potentialPosition
	}

	rounded, err := p.CurrencyPairMetadata.RoundToRemoveAmountPrecisionError(newBalance)
	if err != nil {
		return false, preset, potentialPosition
	}
	return rounded.GreaterThanOrEqual(decimal.Zero), preset, potentialPosition
}

// canReserveWithLimit applies the configured position-limit gate: reject
// unless the potential position after this reservation stays within the
// configured limit, or the reservation at least moves the position toward
// the limit rather than further past it.
func (m *Manager) canReserveWithLimit(p *ReserveParameters) (decimal.Decimal, bool) {
	reservationCurrencyCode := p.CurrencyPairMetadata.TradeCode(p.OrderSide, domain.Before)
	req := p.balanceRequest(reservationCurrencyCode)

	limit, hasLimit := m.amountLimits.Get(req)
	if !hasLimit {
		return decimal.Zero, true
	}

	reservedAmount := m.reservedAmount.GetOrZero(req)
	newReservedAmount := reservedAmount.Add(p.Amount)

	positionAmount := m.positions.GetOrZero(position.Key{ExchangeAccountId: req.ExchangeAccountId, CurrencyPair: req.CurrencyPair})

	var potentialPosition decimal.Decimal
	if p.OrderSide == domain.OrderSideBuy {
		potentialPosition = positionAmount.Add(newReservedAmount)
	} else {
		potentialPosition = positionAmount.Sub(newReservedAmount)
	}

	potentialAbs := decimal.Abs(potentialPosition)
	if potentialAbs.LessThanOrEqual(limit) {
		return potentialPosition, true
	}

	return potentialPosition, potentialAbs.LessThan(decimal.Abs(positionAmount))
}

// getCurrencyCodeAndReservationAmount prices a reservation request into its
// reservation currency and computes its cost.
func (m *Manager) getCurrencyCodeAndReservationAmount(p *ReserveParameters) reservationPreset {
	reservationCurrencyCode := p.CurrencyPairMetadata.TradeCode(p.OrderSide, domain.Before)
	amountInReservationCurrency := p.CurrencyPairMetadata.FromAmountCurrency(reservationCurrencyCode, p.Amount, p.Price)

	costInAmountCurrency, takenFreeAmount := m.calculateReservationCost(p)
	costInReservationCurrency := p.CurrencyPairMetadata.FromAmountCurrency(reservationCurrencyCode, costInAmountCurrency, p.Price)

	return reservationPreset{
		reservationCurrencyCode:        reservationCurrencyCode,
		amountInReservationCurrency:    amountInReservationCurrency,
		takenFreeAmountInAmountCurrency: takenFreeAmount,
		costInReservationCurrency:      costInReservationCurrency,
		costInAmountCurrency:           costInAmountCurrency,
	}
}

// calculateReservationCost prices a reservation: a spot reservation costs
// its full amount; a derivative reservation only pays (in margin, at
// leverage) for whatever isn't already covered by an offsetting position.
func (m *Manager) calculateReservationCost(p *ReserveParameters) (costInAmountCurrency, takenFreeAmount decimal.Decimal) {
	if !p.CurrencyPairMetadata.IsDerivative {
		return p.Amount, decimal.Zero
	}

	freeAmount := m.getUnreservedPositionInAmountCurrency(p.ExchangeAccountId, p.CurrencyPairMetadata, p.OrderSide)
	amountToPayFor := decimal.Max(decimal.Zero, p.Amount.Sub(freeAmount))
	takenFreeAmount = p.Amount.Sub(amountToPayFor)

	leverage, ok := m.getLeverage(p.ExchangeAccountId, p.CurrencyPairMetadata.CurrencyPair())
	if !ok {
		// No leverage configured: price the unpaid amount at leverage 1
		// instead of panicking. getAvailableBalance reads zero without
		// leverage, so any nonzero cost fails to fit; the fill handler
		// surfaces missing leverage as an explicit error.
		return amountToPayFor, takenFreeAmount
	}

	cost := amountToPayFor.Mul(p.CurrencyPairMetadata.AmountMultiplier).Div(leverage)
	return cost, takenFreeAmount
}
