package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/planner"
)

type planKey struct {
	statement string
	level     options.ExplainLevel
}

// Planner is a scripted planner.Planner for tests. Plans and rejections are
// registered per statement; anything unregistered is rejected with an
// AnalysisException.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Planner struct {
	mu       sync.Mutex
	plans    map[planKey]string
	errs     map[string]*planner.Error
	blocks   map[string]<-chan struct{}
	accept   []string
	requests []planner.Request

	// Degree computes the exec request degree. By default the planner
	// echoes the requested mt_dop.
	Degree func(req planner.Request) options.Optional[int32]
}

// NewPlanner creates an empty scripted planner.
func NewPlanner() *Planner {
	return &Planner{
		plans:  make(map[planKey]string),
		errs:   make(map[string]*planner.Error),
		blocks: make(map[string]<-chan struct{}),
	}
}

// On registers the plan returned for stmt at level.
func (p *Planner) On(stmt string, level options.ExplainLevel, plan string) *Planner {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[planKey{stmt, level}] = plan
	return p
}

// Fail registers a planner rejection for stmt at every level.
func (p *Planner) Fail(stmt, kind, message string) *Planner {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[stmt] = &planner.Error{Kind: kind, Message: message}
	return p
}

// Accept makes every statement with the given prefix plan to empty text,
// e.g. "create view" for DDL issued during setup.
func (p *Planner) Accept(prefix string) *Planner {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accept = append(p.accept, strings.ToLower(prefix))
	return p
}

// Block makes planning stmt wait until release is closed, ignoring the
// request context.
func (p *Planner) Block(stmt string, release <-chan struct{}) *Planner {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks[stmt] = release
	return p
}

// Requests returns every request received so far, in arrival order.
func (p *Planner) Requests() []planner.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]planner.Request(nil), p.requests...)
}

func (p *Planner) Plan(ctx context.Context, req planner.Request) (*planner.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	release := p.blocks[req.Statement]
	p.mu.Unlock()

	if release != nil {
		<-release
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.errs[req.Statement]; ok {
		return nil, err
	}

	exec := planner.ExecRequest{MtDop: req.Options.MtDop}
	if p.Degree != nil {
		exec.MtDop = p.Degree(req)
	}

	level := req.Options.ExplainLevelOrDefault()
	if plan, ok := p.plans[planKey{req.Statement, level}]; ok {
		return &planner.Result{Plan: plan, Exec: exec}, nil
	}
	lower := strings.ToLower(strings.TrimSpace(req.Statement))
	for _, prefix := range p.accept {
		if strings.HasPrefix(lower, prefix) {
			return &planner.Result{Exec: exec}, nil
		}
	}
	return nil, &planner.Error{
		Kind:    "AnalysisException",
		Message: "no plan for statement at level " + level.String(),
	}
}
