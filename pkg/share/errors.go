package share

import "errors"

// Sentinel errors for the share codec. A share that fails to decode or
// decrypt is reported as invalid without distinguishing the cause; the
// transport string carries no oracle for attackers to probe.
var (
	// ErrInvalidShare indicates a transport string that could not be
	// decoded, decrypted, or recognized as an offgrid share.
	ErrInvalidShare = errors.New("share: invalid share string")

	// ErrShareExpired indicates a share opened after its expiry time.
	ErrShareExpired = errors.New("share: share has expired")

	// ErrViewLimitReached indicates a share whose view count has reached
	// its limit. The count is advisory: it travels inside the share and
	// only honest clients enforce it.
	ErrViewLimitReached = errors.New("share: view limit reached")
)
