package cnr

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ReferenceLength is the fixed length of a CNR.
const ReferenceLength = 16

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9]{16}$`)

// CaseReference is a validated 16-character alphanumeric CNR.
type CaseReference string

// ParseReference validates raw and returns it as a CaseReference.
// Surrounding whitespace is not trimmed; " ABCD1234567890EF" is invalid.
func ParseReference(raw string) (CaseReference, error) {
	if !referencePattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	return CaseReference(raw), nil
}

// String returns the reference as typed by the caller.
func (r CaseReference) String() string {
	return string(r)
}

// Valid reports whether the reference still satisfies the CNR format.
func (r CaseReference) Valid() bool {
	return referencePattern.MatchString(string(r))
}

// StorageKey builds the object key for a persisted document.
func (r CaseReference) StorageKey(kind OrderKind, index int) string {
	return fmt.Sprintf("%s/%s/order_%d.pdf", r, kind.folder(), index)
}

// CacheKey folds the cutoff date into the key so filtered and unfiltered
// records never collide. Spellings of the same date share a key.
func (r CaseReference) CacheKey(cutoff Cutoff) string {
	if cutoff.IsZero() {
		return strings.ToUpper(string(r))
	}
	return strings.ToUpper(string(r)) + "|" + cutoff.Date().Format(time.DateOnly)
}
