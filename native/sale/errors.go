package sale

import "errors"

var (
	// ErrInvalidPrice is returned when a feed reports a non-positive answer.
	ErrInvalidPrice = errors.New("sale: invalid oracle price")
	// ErrStalePrice is returned when a feed answer is older than the
	// configured freshness bound.
	ErrStalePrice = errors.New("sale: stale oracle price")
	// ErrInvalidAmount is returned for zero purchase amounts.
	ErrInvalidAmount = errors.New("sale: amount must be positive")

	// ErrInvalidUserSignature is returned when the buyer signature does not
	// recover to the order's buyer address.
	ErrInvalidUserSignature = errors.New("sale: invalid user signature")
	// ErrInvalidRelayerSignature is returned when the countersignature does
	// not recover to the trusted co-signer.
	ErrInvalidRelayerSignature = errors.New("sale: invalid relayer signature")
	// ErrInvalidSignatureLength is returned for signatures that are not
	// exactly 65 bytes.
	ErrInvalidSignatureLength = errors.New("sale: invalid signature length")

	// ErrRoundNotFound is returned when the referenced round does not exist.
	ErrRoundNotFound = errors.New("sale: round not found")
	// ErrRoundNotStarted is returned for stage changes before the round
	// window opens.
	ErrRoundNotStarted = errors.New("sale: round not started")
	// ErrRoundAlreadyEnded is returned once the round window has elapsed.
	ErrRoundAlreadyEnded = errors.New("sale: round already ended")
	// ErrRoundNotActive is returned when a purchase targets a round outside
	// an active stage.
	ErrRoundNotActive = errors.New("sale: round not active")
	// ErrSaleEnded is returned for transitions attempted on a terminal round.
	ErrSaleEnded = errors.New("sale: sale ended")
	// ErrStageUnchanged is returned when a transition targets the current
	// stage.
	ErrStageUnchanged = errors.New("sale: round already in requested stage")
	// ErrInvalidTimeRange rejects rounds whose start is not before their end.
	ErrInvalidTimeRange = errors.New("sale: start time must precede end time")

	// ErrWrongStage is returned when the purchase path does not match the
	// round's current stage.
	ErrWrongStage = errors.New("sale: purchase path closed in current stage")
	// ErrNotWhitelisted gates the presale path.
	ErrNotWhitelisted = errors.New("sale: buyer not whitelisted")
	// ErrNonceMismatch is returned when the order nonce does not match the
	// buyer's counter.
	ErrNonceMismatch = errors.New("sale: nonce mismatch")
	// ErrOrderExpired is returned once the order expiry has passed.
	ErrOrderExpired = errors.New("sale: order already expired")
	// ErrCallerNotBuyer is returned when the presale caller is not the
	// order's buyer.
	ErrCallerNotBuyer = errors.New("sale: caller must be order buyer")

	// ErrTokenNotAccepted is returned for payment tokens without an accepted
	// configuration entry.
	ErrTokenNotAccepted = errors.New("sale: payment token not accepted")
	// ErrExceedMaxAllocation is returned when a purchase would push
	// tokensSold past the round allocation.
	ErrExceedMaxAllocation = errors.New("sale: exceeds round allocation")
	// ErrInsufficientBalance is returned when the buyer cannot cover the
	// computed payment amount.
	ErrInsufficientBalance = errors.New("sale: insufficient payment balance")

	// ErrUnauthorized is returned when the caller lacks the role required by
	// the operation.
	ErrUnauthorized = errors.New("sale: caller missing required role")
	// ErrZeroAddress rejects the zero address where a real account is
	// required.
	ErrZeroAddress = errors.New("sale: zero address")
)
