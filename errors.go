package tagpool

import (
	"errors"
	"fmt"
)

// Error kinds (spec.md §7). Never type names: callers match on these
// sentinels with errors.Is, or on the formatted wrappers with errors.As.
var (
	// ErrInvalidKey is returned when a key or tag is outside the allowed
	// printable charset, or a namespace is invalid.
	ErrInvalidKey = errors.New("tagpool: invalid key or tag")

	// ErrStoreNotFound is returned when a registry lookup names an
	// unconfigured store.
	ErrStoreNotFound = errors.New("tagpool: store not found")

	// ErrDriverNotFound is returned when a registry lookup names a driver
	// that was never registered.
	ErrDriverNotFound = errors.New("tagpool: driver not found")

	// errUnsupported marks an operation the current backend does not
	// implement (e.g. Clear without a clearer backend).
	errUnsupported = errors.New("tagpool: operation not supported by backend")

	// errRetryable marks a backend error as transient: the commit
	// protocol may retry the affected ids individually (spec.md §4.1.1
	// step 5, §7 "backend transient failure").
	errRetryable = errors.New("tagpool: transient backend error")
)

// ErrInvalidConfig returns a configuration error with a formatted message.
func ErrInvalidConfig(format string, args ...any) error {
	return fmt.Errorf("tagpool: invalid config: "+format, args...)
}

// ErrBackendFatal wraps a raised backend error (e.g. unwritable
// filesystem root, misconfigured Redis eviction policy). Commit returns
// one only for a marshaller failure; backend-fatal DoSave errors are
// logged, not returned.
func ErrBackendFatal(backend string, err error) error {
	return fmt.Errorf("tagpool: backend %q fatal error: %w", backend, err)
}

// Retryable wraps err to mark it as transient: the bulk operation failed
// wholesale, but a per-id retry is worth attempting. Commit does not check
// the mark; it retries any failed multi-item bin per item.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errRetryable, err)
}

// IsRetryable reports whether err was produced by Retryable (directly or
// wrapped).
func IsRetryable(err error) bool {
	return errors.Is(err, errRetryable)
}
