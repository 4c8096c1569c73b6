package dbctx

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type runKey struct{}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:dbctx?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestDBPrefersTransaction(t *testing.T) {
	db := openDB(t)
	ctx := context.WithValue(context.Background(), runKey{}, "run-1")

	got := Context{Ctx: ctx}.DB(db)
	if got.Statement.Context != ctx {
		t.Fatalf("base db context: want=request ctx got=%v", got.Statement.Context)
	}

	tx := db.Begin()
	defer tx.Rollback()
	got = Context{Ctx: ctx, Tx: tx}.DB(db)
	if got.Statement.ConnPool != tx.Statement.ConnPool {
		t.Fatalf("DB did not use the transaction connection")
	}
	if got.Statement.Context != ctx {
		t.Fatalf("tx context: want=request ctx got=%v", got.Statement.Context)
	}
}

func TestDetachedSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), runKey{}, "run-1"))
	dbc := Detached(ctx)
	cancel()

	if err := dbc.Ctx.Err(); err != nil {
		t.Fatalf("detached ctx err: want=nil got=%v", err)
	}
	if v := dbc.Ctx.Value(runKey{}); v != "run-1" {
		t.Fatalf("detached ctx value: want=run-1 got=%v", v)
	}
	if dbc.Tx != nil {
		t.Fatalf("detached tx: want=nil got=%v", dbc.Tx)
	}
}
