package kvlookup

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrStoreOpen matches every *StoreOpenError.
	ErrStoreOpen = errors.New("store open failed")

	// ErrInterrupted is returned when a run is interrupted mid-document.
	// Features written before the interruption stay in place.
	ErrInterrupted = errors.New("processing interrupted")

	// ErrClosed is returned when closing a store handle twice.
	ErrClosed = errors.New("store handle already closed")

	// ErrNotOpener is returned when a non-opener tries to close a shared handle.
	ErrNotOpener = errors.New("only the opener may close a shared store")

	// ErrNotAcquired is returned when releasing a key that holds no reference.
	ErrNotAcquired = errors.New("store was not acquired")
)

// ConfigurationError reports a missing or invalid configuration field.
// It is fatal and reported before any document is processed.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StoreOpenError reports a store that could not be opened.
//
// The original underlying error can be accessed via errors.Unwrap.
type StoreOpenError struct {
	Location string
	Map      string
	Err      error
}

func (e *StoreOpenError) Error() string {
	if e.Map != "" {
		return fmt.Sprintf("open store %s (map %q): %v", e.Location, e.Map, e.Err)
	}
	return fmt.Sprintf("open store %s: %v", e.Location, e.Err)
}

func (e *StoreOpenError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStoreOpen.
func (e *StoreOpenError) Is(target error) bool { return target == ErrStoreOpen }

func asStoreOpenError(key ResourceKey, err error) *StoreOpenError {
	var soe *StoreOpenError
	if errors.As(err, &soe) {
		return soe
	}
	return &StoreOpenError{Location: key.Location, Map: key.MapName, Err: err}
}
