package brm

import (
	"fmt"

	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/reservation"
)

// Unreserve releases amount from reservation_id, attributing it to
// clientOrderId's approved part when one is given, or to the not-approved
// remainder otherwise. A reservation whose unreserved
// amount lands at or below the symbol margin error is removed from the
// store entirely, with any residual compensated back onto the virtual
// balance.
func (m *Manager) Unreserve(id reservation.Id, amount decimal.Decimal, clientOrderId *domain.ClientOrderId) error {
	r := m.reservations.TryGet(id)
	if r == nil {
		if amount.IsZero() {
			return nil
		}
		return fmt.Errorf("%w: %d", ErrUnknownReservation, id)
	}

	amountToUnreserve, err := r.CurrencyPairMetadata.RoundToRemoveAmountPrecisionError(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrecisionRoundingFailed, err)
	}
	if amountToUnreserve.IsZero() && !r.Amount.IsZero() {
		return nil
	}

	if err := m.unreserveNotApprovedPart(r, clientOrderId, amountToUnreserve); err != nil {
		return err
	}

	req := r.BalanceRequest()
	if _, err := m.addReservedAmount(req, id, amountToUnreserve.Neg(), true); err != nil {
		return err
	}

	if r.UnreservedAmount.IsNegative() || r.CurrencyPairMetadata.IsAmountWithinSymbolMarginError(r.UnreservedAmount) {
		m.reservations.Remove(id)
		if !r.UnreservedAmount.IsZero() {
			// Residual left over from rounding noise: compensate it back
			// onto the balance rather than leaving it stranded.
			if _, err := m.addReservedAmountByReservation(req, r, r.UnreservedAmount.Neg(), true); err != nil {
				return err
			}
		}
	}

	return nil
}

// unreserveNotApprovedPart applies amountToUnreserve to the right slice of
// the reservation: a specific ApprovedPart when clientOrderId is given, the
// not-approved remainder otherwise.
func (m *Manager) unreserveNotApprovedPart(r *reservation.BalanceReservation, clientOrderId *domain.ClientOrderId, amountToUnreserve decimal.Decimal) error {
	if clientOrderId == nil {
		r.NotApprovedAmount = r.NotApprovedAmount.Sub(amountToUnreserve)
		return nil
	}

	part, ok := r.ApprovedParts[*clientOrderId]
	if !ok {
		// No approved part under this id: treat the amount as belonging to
		// the not-approved remainder rather than failing the whole call.
		r.NotApprovedAmount = r.NotApprovedAmount.Sub(amountToUnreserve)
		return nil
	}

	newUnreservedForPart := part.UnreservedAmount.Sub(amountToUnreserve)
	if newUnreservedForPart.IsNegative() {
		return fmt.Errorf("%w: order %s", ErrNegativeApprovedResidual, *clientOrderId)
	}
	part.UnreservedAmount = newUnreservedForPart
	return nil
}

// ApproveReservation binds amount of a reservation's not-approved remainder
// to clientOrderId once the corresponding order is live on the exchange.
func (m *Manager) ApproveReservation(id reservation.Id, clientOrderId domain.ClientOrderId, amount decimal.Decimal) error {
	r := m.reservations.TryGet(id)
	if r == nil {
		return fmt.Errorf("%w: %d", ErrUnknownReservation, id)
	}

	if _, exists := r.ApprovedParts[clientOrderId]; exists {
		return fmt.Errorf("%w: %s", ErrDoubleApproval, clientOrderId)
	}

	r.NotApprovedAmount = r.NotApprovedAmount.Sub(amount)
	if r.NotApprovedAmount.IsNegative() && !r.CurrencyPairMetadata.IsAmountWithinSymbolMarginError(r.NotApprovedAmount) {
		r.NotApprovedAmount = r.NotApprovedAmount.Add(amount)
		return fmt.Errorf("%w: order %s amount %s", ErrNegativeNotApproved, clientOrderId, amount)
	}

	r.ApprovedParts[clientOrderId] = &reservation.ApprovedPart{
		DateTime:         m.clock(),
		ClientOrderId:    clientOrderId,
		Amount:           amount,
		UnreservedAmount: amount,
	}
	return nil
}

// CancelApprovedReservation reverses ApproveReservation: the approved
// part's remaining amount returns to the not-approved pool and the part is
// marked canceled so a second cancel is rejected.
func (m *Manager) CancelApprovedReservation(id reservation.Id, clientOrderId domain.ClientOrderId) error {
	r := m.reservations.TryGet(id)
	if r == nil {
		return fmt.Errorf("%w: %d", ErrUnknownReservation, id)
	}

	part, ok := r.ApprovedParts[clientOrderId]
	if !ok {
		return fmt.Errorf("brm: no approved part for order %s", clientOrderId)
	}
	if part.IsCanceled {
		return fmt.Errorf("brm: approved part for order %s already canceled", clientOrderId)
	}

	r.NotApprovedAmount = r.NotApprovedAmount.Add(part.UnreservedAmount)
	part.IsCanceled = true
	return nil
}

// TryTransferReservation moves amount from src to dst, two reservations
// that must share configuration descriptor, exchange, market and side.
// Returns false without mutating anything if the amount to move rounds to
// zero or the transfer would leave dst's balance negative; these are the
// only reasons a well-formed transfer request fails.
func (m *Manager) TryTransferReservation(srcId, dstId reservation.Id, amount decimal.Decimal, clientOrderId *domain.ClientOrderId) (bool, error) {
	src := m.reservations.TryGet(srcId)
	dst := m.reservations.TryGet(dstId)
	if src == nil || dst == nil {
		return false, fmt.Errorf("%w: src=%d dst=%d", ErrUnknownReservation, srcId, dstId)
	}
	if src.ConfigurationDescriptor != dst.ConfigurationDescriptor ||
		src.ExchangeAccountId != dst.ExchangeAccountId ||
		src.CurrencyPairMetadata.CurrencyPair() != dst.CurrencyPairMetadata.CurrencyPair() ||
		src.CurrencyPairMetadata.IsDerivative != dst.CurrencyPairMetadata.IsDerivative ||
		src.OrderSide != dst.OrderSide {
		return false, ErrTransferSourceMismatch
	}

	amountToMove, err := src.CurrencyPairMetadata.RoundToRemoveAmountPrecisionError(amount)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPrecisionRoundingFailed, err)
	}
	if amountToMove.IsZero() {
		return false, nil
	}

	if !src.Price.Equal(dst.Price) && src.CurrencyPairMetadata.IsDerivative {
		addAmount := src.ConvertInReservationCurrency(amountToMove)
		subAmount := dst.ConvertInReservationCurrency(amountToMove)
		balanceDiff := addAmount.Sub(subAmount)

		availableBalance, ok := m.TryGetAvailableBalance(dst.ConfigurationDescriptor, dst.ExchangeAccountId, dst.CurrencyPairMetadata, dst.OrderSide, dst.Price, true, false)
		if !ok {
			availableBalance = decimal.Zero
		}
		if availableBalance.Add(balanceDiff).IsNegative() {
			return false, nil
		}
	}

	if err := m.transferAmount(srcId, dstId, amountToMove, clientOrderId); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) transferAmount(srcId, dstId reservation.Id, amountToMove decimal.Decimal, clientOrderId *domain.ClientOrderId) error {
	src := m.reservations.TryGet(srcId)
	newSrcUnreserved := src.UnreservedAmount.Sub(amountToMove)
	srcCostDiff, err := m.updateUnreservedAmountForTransfer(srcId, newSrcUnreserved, clientOrderId, true, decimal.Zero)
	if err != nil {
		return fmt.Errorf("transfer: update src reservation: %w", err)
	}

	dst := m.reservations.TryGet(dstId)
	newDstUnreserved := dst.UnreservedAmount.Add(amountToMove)
	if _, err := m.updateUnreservedAmountForTransfer(dstId, newDstUnreserved, clientOrderId, false, srcCostDiff.Neg()); err != nil {
		return fmt.Errorf("transfer: update dst reservation: %w", err)
	}
	return nil
}

// updateUnreservedAmountForTransfer reprices one side of a transfer: it
// moves unreserved_amount to newUnreservedAmount, attributes the diff to
// the named client order (or the not-approved pool), and either computes a
// fresh proportional cost diff (the source side) or applies a pre-computed
// one handed down from the source side (the destination side), keeping the
// two legs of the transfer cost-neutral overall.
func (m *Manager) updateUnreservedAmountForTransfer(id reservation.Id, newUnreservedAmount decimal.Decimal, clientOrderId *domain.ClientOrderId, isSrcRequest bool, targetCostDiff decimal.Decimal) (decimal.Decimal, error) {
	r := m.reservations.TryGet(id)
	if r == nil {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrUnknownReservation, id)
	}
	if newUnreservedAmount.IsNegative() && !r.CurrencyPairMetadata.IsAmountWithinSymbolMarginError(newUnreservedAmount) {
		return decimal.Zero, fmt.Errorf("brm: can't set %s unreserved amount on reservation %d", newUnreservedAmount, id)
	}

	reservationAmountDiff := newUnreservedAmount.Sub(r.UnreservedAmount)

	if clientOrderId != nil {
		if part, ok := r.ApprovedParts[*clientOrderId]; ok {
			newAmount := part.UnreservedAmount.Add(reservationAmountDiff)
			switch {
			case r.CurrencyPairMetadata.IsAmountWithinSymbolMarginError(newAmount):
				delete(r.ApprovedParts, *clientOrderId)
			case newAmount.IsNegative():
				return decimal.Zero, fmt.Errorf("%w: order %s", ErrNegativeApprovedResidual, *clientOrderId)
			default:
				part.UnreservedAmount = newAmount
				part.Amount = part.Amount.Add(reservationAmountDiff)
			}
		} else {
			if isSrcRequest {
				return decimal.Zero, fmt.Errorf("%w: no approved part %s on source reservation %d", ErrUnknownReservation, *clientOrderId, id)
			}
			r.ApprovedParts[*clientOrderId] = &reservation.ApprovedPart{
				DateTime:         m.clock(),
				ClientOrderId:    *clientOrderId,
				Amount:           reservationAmountDiff,
				UnreservedAmount: reservationAmountDiff,
			}
		}
	} else {
		r.NotApprovedAmount = r.NotApprovedAmount.Add(reservationAmountDiff)
	}

	balanceRequest := r.BalanceRequest()
	m.addReservedAmount(balanceRequest, id, reservationAmountDiff, false)

	var costDiff decimal.Decimal
	if isSrcRequest {
		costDiff = r.GetProportionalCostAmount(reservationAmountDiff)
	} else {
		costDiff = targetCostDiff
	}
	if err := m.addVirtualBalance(balanceRequest, r.CurrencyPairMetadata, r.Price, costDiff.Neg()); err != nil {
		return decimal.Zero, err
	}
	r.Cost = r.Cost.Add(costDiff)
	r.Amount = r.Amount.Add(reservationAmountDiff)

	if r.CurrencyPairMetadata.IsAmountWithinSymbolMarginError(newUnreservedAmount) {
		m.reservations.Remove(id)
	}

	return costDiff, nil
}

// TryUpdateReservationPrice reprices a live reservation, recomputing its
// cost against the new price and rejecting the update if the resulting
// balance would go negative.
func (m *Manager) TryUpdateReservationPrice(id reservation.Id, newPrice decimal.Decimal) bool {
	r := m.reservations.TryGet(id)
	if r == nil {
		return false
	}

	approvedSum := decimal.Zero
	for _, part := range r.ApprovedParts {
		if !part.IsCanceled {
			approvedSum = approvedSum.Add(part.UnreservedAmount)
		}
	}
	newRawRestAmount := r.Amount.Sub(approvedSum)
	newRestAmountInReservationCurrency := r.CurrencyPairMetadata.FromAmountCurrency(r.ReservationCurrencyCode, newRawRestAmount, newPrice)
	notApprovedInReservationCurrency := r.NotApprovedInReservationCurrency()
	diffInReservationCurrency := newRestAmountInReservationCurrency.Sub(notApprovedInReservationCurrency)

	oldBalance, ok := m.TryGetAvailableBalance(r.ConfigurationDescriptor, r.ExchangeAccountId, r.CurrencyPairMetadata, r.OrderSide, newPrice, true, false)
	if !ok {
		oldBalance = decimal.Zero
	}
	newBalance := oldBalance.Sub(diffInReservationCurrency)
	if newBalance.IsNegative() {
		return false
	}

	r.Price = newPrice
	reservationAmountDiff := r.CurrencyPairMetadata.ToAmountCurrency(r.ReservationCurrencyCode, diffInReservationCurrency, r.Price)

	// Temporarily step unreserved_amount down so add_reserved_amount's
	// proportional cost calculation bases itself on the post-diff amount,
	// then let that same call add the diff back — net unreserved_amount is
	// unchanged, but the cost charge reflects the new price.
	r.UnreservedAmount = r.UnreservedAmount.Sub(reservationAmountDiff)
	if _, err := m.addReservedAmount(r.BalanceRequest(), id, reservationAmountDiff, true); err != nil {
		m.log.Error().Err(err).Str("pair", r.CurrencyPairMetadata.CurrencyPair().String()).Msg("brm: failed to reprice reservation")
		return false
	}
	r.NotApprovedAmount = newRawRestAmount

	return true
}
