package arke

import (
	"errors"
	"fmt"

	"github.com/Arke-Institute/arke/cas"
	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/index"
	"github.com/Arke-Institute/arke/kv"
	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/tip"
)

var (
	// ErrNotFound is returned when an entity or content address does
	// not resolve.
	ErrNotFound = errors.New("not found")

	// ErrConflict is the sentinel underneath every CASError, for
	// callers that only care whether a write lost a race.
	ErrConflict = errors.New("conflict")

	// ErrStorageUnavailable indicates the content store or the tip
	// substrate could not serve the request. Transient by contract.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// CASError reports a lost compare-and-swap on an entity tip. Actual is
// the tip the winning writer installed; to proceed, recompute the
// update against it and resubmit.
//
// errors.Is(err, ErrConflict) holds for every CASError.
type CASError struct {
	PI       pi.PI
	Expected cid.CID // "" for a creation attempt
	Actual   cid.CID
	cause    error
}

func (e *CASError) Error() string {
	return fmt.Sprintf("tip moved for %s: expected %q, actual %q", e.PI, e.Expected, e.Actual)
}

func (e *CASError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrConflict
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CursorError reports a pagination cursor that cannot be resolved.
// The caller should restart the enumeration from the beginning.
type CursorError = index.CursorError

// translateError unifies sub-package errors into the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, tip.ErrNotFound) || errors.Is(err, cas.ErrNotFound) || errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Lost races carry the actual tip through.
	var tc *tip.CASError
	if errors.As(err, &tc) {
		return &CASError{PI: tc.PI, Expected: tc.Expected, Actual: tc.Actual, cause: fmt.Errorf("%w: %w", ErrConflict, err)}
	}

	// Substrate failures.
	if errors.Is(err, cas.ErrUnavailable) || errors.Is(err, kv.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// Malformed identifiers.
	if errors.Is(err, pi.ErrInvalid) {
		return &ValidationError{Field: "pi", Reason: err.Error()}
	}

	return err
}
