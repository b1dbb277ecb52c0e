package shared

import "github.com/pkg/errors"

// Sentinel errors implementing the taxonomy of spec §7. These are
// conditions a fetcher or summarizer recognizes and handles specially, as
// distinct from an opaque wrapped error that should just be logged and
// retried next tick.
var (
	// ErrPreconditionNotMet means the data this job depends on hasn't
	// settled yet (committees not fetched, too close to head, less than
	// 24h of new hourly rows). Logged at info, job returns successfully.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrDataIntegrity means an expected row was absent or a batch insert
	// affected zero rows: something the store should never produce under
	// normal operation. Surfaced as an error; no watermark advances.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrConfigInvalid is only ever returned from start-up configuration
	// validation and is always fatal.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// IsPreconditionNotMet reports whether err is, or wraps, ErrPreconditionNotMet.
func IsPreconditionNotMet(err error) bool {
	return errors.Is(err, ErrPreconditionNotMet)
}

// IsDataIntegrity reports whether err is, or wraps, ErrDataIntegrity.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}
