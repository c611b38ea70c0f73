// Package ids provides the opaque, reversible identifiers used for external
// references to messages and entrants in URLs and API payloads.
package ids

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Encode converts an internal identifier to its opaque external form.
func Encode(id uuid.UUID) string {
	return base58.Encode(id[:])
}

// Decode converts an opaque external identifier back to the internal one.
func Decode(s string) (uuid.UUID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}
