package shared

import "context"

// NumberSource hands out document numbers. Numbering is owned by an
// external sequence generator; the engine treats the returned values
// as opaque unique strings.
type NumberSource interface {
	Next(ctx context.Context, kind string) (string, error)
}
