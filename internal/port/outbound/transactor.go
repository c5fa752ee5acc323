package outbound

import "context"

// Transactor runs a function inside one storage transaction. The
// transaction rides the context, so repository calls made with it join the
// same transaction and row locks taken by a claim hold until fn returns.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
