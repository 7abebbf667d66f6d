// Package search defines the search collaborator: an external index
// queried by cuisine and location that returns a ranked list of
// restaurant identifiers. Failures are either transient (retryable via
// queue redelivery) or terminal (marked with domain.Terminal).
package search

import "context"

type Client interface {
	// Find returns up to limit candidate restaurant ids. An empty
	// result is a successful query, not an error.
	Find(ctx context.Context, cuisine, location string, limit int) ([]string, error)
}
