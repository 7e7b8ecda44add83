package spatial

import "fmt"

// Kind classifies a VaultError semantically. Callers switch on Kind rather
// than on distinct Go error types.
type Kind int

const (
	// KindInvalidArgument covers non-finite coordinates, non-positive radius,
	// duplicate UUIDs, and identical source/destination in a transfer.
	KindInvalidArgument Kind = iota
	// KindNotFound covers an unknown region id or object uuid.
	KindNotFound
	// KindConflict covers a UUID already present in a different region at
	// insert time.
	KindConflict
	// KindStoreIO covers a BackingStore read/write failure.
	KindStoreIO
	// KindCorruption covers a store record inconsistent with the schema, or
	// one referencing a missing blob.
	KindCorruption
	// KindTransient covers a lock-acquisition timeout; the caller may retry.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStoreIO:
		return "store_io"
	case KindCorruption:
		return "corruption"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// VaultError is the single error type surfaced by this package. Kind
// carries the semantic classification from §7 of the spec; Cause, when
// non-nil, is reachable via errors.Unwrap.
type VaultError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *VaultError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VaultError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &VaultError{Kind: KindNotFound}) match by Kind
// alone, ignoring Message and Cause.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(k Kind, format string, args ...any) *VaultError {
	return &VaultError{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(k Kind, cause error, format string, args ...any) *VaultError {
	return &VaultError{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func errInvalidArgument(format string, args ...any) *VaultError {
	return newErr(KindInvalidArgument, format, args...)
}

func errNotFound(format string, args ...any) *VaultError {
	return newErr(KindNotFound, format, args...)
}

func errConflict(format string, args ...any) *VaultError {
	return newErr(KindConflict, format, args...)
}

func errStoreIO(cause error, format string, args ...any) *VaultError {
	return wrapErr(KindStoreIO, cause, format, args...)
}

func errCorruption(format string, args ...any) *VaultError {
	return newErr(KindCorruption, format, args...)
}

// KindOf reports the Kind of err if it is (or wraps) a *VaultError, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var ve *VaultError
	if ok := asVaultError(err, &ve); ok {
		return ve.Kind, true
	}
	return 0, false
}

func asVaultError(err error, target **VaultError) bool {
	for err != nil {
		if ve, ok := err.(*VaultError); ok {
			*target = ve
			return true
		}
		unwrap, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrap.Unwrap()
	}
	return false
}
