package resumption

import (
	"context"
	"errors"

	"github.com/ensemblehq/conductor/runtime/execution"
)

// ErrTokenNotFound is returned when a resume token does not exist or has
// already been consumed.
var ErrTokenNotFound = errors.New("resumption: token not found")

// Service owns suspended-execution snapshots. Suspend issues a one-time
// opaque token; Consume atomically claims the snapshot so a second call
// with the same token fails with ErrTokenNotFound.
type Service interface {
	Suspend(ctx context.Context, snapshot *execution.Suspended) (string, error)

	Consume(ctx context.Context, token string) (*execution.Suspended, error)

	Discard(ctx context.Context, token string) error

	Pending(ctx context.Context) ([]string, error)
}
