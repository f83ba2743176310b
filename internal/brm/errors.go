package brm

import "errors"

// Sentinel error kinds, checked with errors.Is by callers that
// need to branch on the failure instead of just logging it.
var (
	// ErrUnknownReservation is returned by mutating calls against a
	// reservation id that isn't in the store. Unreserve itself tolerates
	// this when the caller asked for a zero amount; every other mutator
	// surfaces it.
	ErrUnknownReservation = errors.New("brm: unknown reservation")

	// ErrPrecisionRoundingFailed wraps a failure from
	// CurrencyPairMetadata.RoundToRemoveAmountPrecisionError.
	ErrPrecisionRoundingFailed = errors.New("brm: precision rounding failed")

	// ErrNegativeApprovedResidual is returned when an unreserve would push
	// an ApprovedPart's remaining amount below zero.
	ErrNegativeApprovedResidual = errors.New("brm: unreserve exceeds approved part remainder")

	// ErrDoubleApproval is returned when approve_reservation is called
	// twice for the same client order id.
	ErrDoubleApproval = errors.New("brm: order already approved")

	// ErrNegativeNotApproved is returned when approving would drive
	// not_approved_amount below -ε.
	ErrNegativeNotApproved = errors.New("brm: approved amount exceeds not-approved remainder")

	// ErrRestorationOnSpot is returned by RestoreFillAmountPosition for a
	// non-derivative market.
	ErrRestorationOnSpot = errors.New("brm: fill-amount position restoration is derivative-only")

	// ErrMissingBalanceCurrency is returned when a derivative fill needs a
	// balance_currency_code that metadata doesn't carry.
	ErrMissingBalanceCurrency = errors.New("brm: derivative market has no balance currency configured")

	// ErrLeverageMissing is returned by the fill and commission handlers
	// when they need leverage that was never registered for the market.
	ErrLeverageMissing = errors.New("brm: no leverage configured for market")

	// ErrTransferSourceMismatch is returned by TryTransferReservation when
	// the two reservations don't share descriptor/exchange/pair/side.
	ErrTransferSourceMismatch = errors.New("brm: transfer between reservations from different sources")

	// ErrInsufficientBalance is a convenience sentinel for callers that
	// want to distinguish "reservation genuinely didn't fit" from other
	// failures. BRM itself never returns it: TryReserve and CanReserve
	// report a failed fit as false, and callers such as
	// engine.Exchange.SubmitOrder return this sentinel themselves.
	ErrInsufficientBalance = errors.New("brm: insufficient available balance")
)
