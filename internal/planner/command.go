package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roach88/plantest/internal/options"
)

// Command runs an external planner process once per request.
//
// The request is written to stdin as JSON:
//
//	{"statement": "...", "database": "tpch", "test_mode": true,
//	 "options": {"explain_level": "STANDARD", "mt_dop": "3"}}
//
// and the process answers on stdout with either
//
//	{"plan": "...", "exec_request": {"mt_dop": 3}}
//
// or
//
//	{"error": {"kind": "NotImplementedException", "message": "..."}}
//
// A process that exits non-zero without a JSON error is a transport failure,
// not a planning failure.
type Command struct {
	Path string
	Args []string
	// Env is appended to the inherited environment.
	Env []string
}

type commandRequest struct {
	Statement string            `json:"statement"`
	Database  string            `json:"database,omitempty"`
	TestMode  bool              `json:"test_mode"`
	Options   map[string]string `json:"options"`
}

type commandResponse struct {
	Plan        string `json:"plan"`
	ExecRequest *struct {
		MtDop *int32 `json:"mt_dop"`
	} `json:"exec_request,omitempty"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewCommand returns a Command planner for argv. argv must not be empty.
func NewCommand(argv []string, env ...string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("planner command is empty")
	}
	return &Command{Path: argv[0], Args: argv[1:], Env: env}, nil
}

func (c *Command) Plan(ctx context.Context, req Request) (*Result, error) {
	in, err := json.Marshal(commandRequest{
		Statement: req.Statement,
		Database:  req.Database,
		TestMode:  req.TestMode,
		Options:   req.Options.Map(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode planner request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(in)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	res, decodeErr := decodeResponse(stdout.Bytes())
	var planErr *Error
	if errors.As(decodeErr, &planErr) {
		return nil, planErr
	}
	// A plan printed before a crash is not a plan.
	if runErr != nil {
		return nil, fmt.Errorf("planner %s failed: %w: %s", c.Path, runErr, strings.TrimSpace(stderr.String()))
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return res, nil
}

func decodeResponse(out []byte) (*Result, error) {
	var resp commandResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode planner response: %w", err)
	}
	if resp.Error != nil {
		return nil, &Error{Kind: resp.Error.Kind, Message: resp.Error.Message}
	}
	res := &Result{Plan: resp.Plan}
	if resp.ExecRequest != nil && resp.ExecRequest.MtDop != nil {
		res.Exec.MtDop = options.Some(*resp.ExecRequest.MtDop)
	}
	return res, nil
}
