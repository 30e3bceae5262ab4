package ports

import "context"

// Credentials resolves a named secret, such as the API token of an HTTP
// state source.
type Credentials interface {
	Lookup(ctx context.Context, key string) (string, error)
}
