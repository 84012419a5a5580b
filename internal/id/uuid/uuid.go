// Package uuid generates job IDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Generator creates time-ordered UUIDv7 job IDs.
type Generator struct{}

var _ cnr.IDGenerator = Generator{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
