// Package planner defines the boundary to the external query planner.
//
// The harness never plans statements itself. It hands a statement, its
// resolved query options and the target database to a Planner and gets back
// the textual plan plus the exec request the planner would have scheduled.
package planner

import (
	"context"
	"fmt"

	"github.com/roach88/plantest/internal/options"
)

// Request is one planning call.
type Request struct {
	Statement string
	// Database resolves unqualified table references.
	Database string
	Options  options.QueryOptions
	// TestMode relaxes production-only planner constraints.
	TestMode bool
}

// ExecRequest is the part of the planner's exec request the harness checks.
type ExecRequest struct {
	// MtDop is the parallelism degree the statement will run with, unset if
	// the planner left it unset.
	MtDop options.Optional[int32]
}

// Result is a successful planning call.
type Result struct {
	// Plan is the explain text at the requested explain level.
	Plan string
	Exec ExecRequest
}

// Planner produces plans.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to the Planner interface.
type Func func(ctx context.Context, req Request) (*Result, error)

func (f Func) Plan(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Error is a statement rejected by the planner, such as an analysis error or
// an unsupported plan shape. Golden files record negative cases as the
// Error() text.
type Error struct {
	// Kind is the planner's exception class, e.g. "NotImplementedException".
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
