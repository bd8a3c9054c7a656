package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/planner"
)

// DefaultDatabase is used when neither the suite nor the case names one.
const DefaultDatabase = "default"

// Scope is the namespace context a statement is planned in.
type Scope struct {
	Database string
}

// database returns the scope's database or DefaultDatabase.
func (s *Scope) database() string {
	if s == nil || s.Database == "" {
		return DefaultDatabase
	}
	return s.Database
}

// override returns a scope for a case that may name its own database.
func (s *Scope) override(db string) Scope {
	if db != "" {
		return Scope{Database: db}
	}
	return Scope{Database: s.database()}
}

// Execution is a successfully captured plan.
type Execution struct {
	Plan    string
	Options options.QueryOptions
	Exec    planner.ExecRequest
}

// CaptureError is a statement that produced no plan.
type CaptureError struct {
	Statement string
	Message   string
	// Planning is true when the planner rejected the statement. Such
	// failures may be the expected outcome of a negative case.
	Planning bool
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %q: %s", e.Statement, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Capture plans stmt once with opts in scope. It returns when the planner
// does or when ctx is done, whichever comes first, so a planner that ignores
// cancellation cannot hang the caller.
func Capture(ctx context.Context, p planner.Planner, stmt string, opts options.QueryOptions, scope Scope, testMode bool) (*Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CaptureError{Statement: stmt, Message: err.Error(), Err: err}
	}

	req := planner.Request{
		Statement: stmt,
		Database:  scope.database(),
		Options:   opts,
		TestMode:  testMode,
	}

	type outcome struct {
		res *planner.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Plan(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		return nil, &CaptureError{Statement: stmt, Message: err.Error(), Err: err}
	case out := <-done:
		if out.err != nil {
			var planErr *planner.Error
			return nil, &CaptureError{
				Statement: stmt,
				Message:   out.err.Error(),
				Planning:  errors.As(out.err, &planErr),
				Err:       out.err,
			}
		}
		if out.res == nil {
			return nil, &CaptureError{Statement: stmt, Message: "planner returned no result"}
		}
		return &Execution{Plan: out.res.Plan, Options: opts, Exec: out.res.Exec}, nil
	}
}
