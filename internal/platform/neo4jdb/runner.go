package neo4jdb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes one parameterised Cypher statement and returns its records as maps.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Session is a request-scoped auto-commit runner: every Run is its own transaction.
// Callers must Close it, typically with defer right after OpenSession.
type Session struct {
	sess neo4j.SessionWithContext
}

func (c *Client) OpenSession(ctx context.Context, write bool) (*Session, error) {
	if !c.Ready() {
		return nil, fmt.Errorf("neo4jdb: client not initialized")
	}
	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	return &Session{sess: c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})}, nil
}

func (s *Session) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	res, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return collect(ctx, res)
}

func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.sess == nil {
		return nil
	}
	return s.sess.Close(ctx)
}

// WithSession opens a session for the duration of fn and always closes it.
func (c *Client) WithSession(ctx context.Context, write bool, fn func(Runner) error) error {
	sess, err := c.OpenSession(ctx, write)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)
	return fn(sess)
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (r txRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	res, err := r.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return collect(ctx, res)
}

// ExecuteWrite runs fn inside one managed write transaction; all statements commit together
// or not at all. The driver may retry fn on transient failures, so fn must not keep state
// across attempts.
func (c *Client) ExecuteWrite(ctx context.Context, fn func(Runner) error) error {
	if !c.Ready() {
		return fmt.Errorf("neo4jdb: client not initialized")
	}
	sess := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(txRunner{tx: tx})
	})
	return err
}

func collect(ctx context.Context, res neo4j.ResultWithContext) ([]map[string]any, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.AsMap())
	}
	return out, nil
}
