package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repositories take it so an ingest run record can join the caller's transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Detached keeps the values of ctx but drops its cancellation, so an audit row for a
// failed or aborted ingest is still written after the request has gone away.
func Detached(ctx context.Context) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Context{Ctx: context.WithoutCancel(ctx)}
}

// DB returns the transaction when one is set, otherwise base, bound to c.Ctx.
func (c Context) DB(base *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = base
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx)
}
