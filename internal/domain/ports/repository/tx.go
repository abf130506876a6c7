package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is whatever handle the store hands to a unit of work. Repository
// methods take it as qx and treat nil as "use the pool".
type Tx = any

// NoTX runs a repository call outside any transaction.
var NoTX Tx

// TransactionManager runs a unit of work atomically. The work may be invoked
// more than once when the store aborts it for a retryable conflict.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
