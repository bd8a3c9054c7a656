package golden

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/plantest/internal/options"
)

const (
	caseSeparator   = "===="
	sectionPrefix   = "---- "
	sectionOptions  = "QUERYOPTIONS"
	sectionDatabase = "DATABASE"
	sectionPlan     = "PLAN"

	maxLineSize = 4 << 20
)

// LoadError is a malformed or missing specification. It is fatal for that
// specification only.
type LoadError struct {
	Name string
	// Line is 0 when the error is not tied to a line.
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Name, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrNoCases is returned for a specification without test cases.
var ErrNoCases = errors.New("no test cases")

// parser accumulates one case at a time.
type parser struct {
	name  string
	spec  *Specification
	cur   *Case
	lines []string // body of the current section
	sect  string   // current section header, "" while reading the statement
	line  int
	start int // first line of the current case
	at    int // line of the current section header
}

// Parse reads a specification from r.
func Parse(name string, r io.Reader) (*Specification, error) {
	p := &parser{name: name, spec: &Specification{Name: name}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		p.line++
		if err := p.feed(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Name: name, Line: p.line, Err: err}
	}
	if err := p.endCase(); err != nil {
		return nil, err
	}
	if len(p.spec.Cases) == 0 {
		return nil, &LoadError{Name: name, Err: ErrNoCases}
	}
	return p.spec, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(name string, data []byte) (*Specification, error) {
	return Parse(name, bytes.NewReader(data))
}

func (p *parser) errorf(format string, args ...any) error {
	return p.errorAt(p.line, format, args...)
}

func (p *parser) errorAt(line int, format string, args ...any) error {
	return &LoadError{Name: p.name, Line: line, Err: fmt.Errorf(format, args...)}
}

func (p *parser) feed(line string) error {
	if strings.TrimRight(line, " \t") == caseSeparator {
		return p.endCase()
	}
	if p.cur == nil {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		p.cur = &Case{Index: len(p.spec.Cases)}
		p.start = p.line
	}
	if strings.HasPrefix(line, sectionPrefix) {
		if err := p.endSection(); err != nil {
			return err
		}
		p.sect = strings.TrimSpace(strings.TrimPrefix(line, sectionPrefix))
		p.at = p.line
		if p.sect == "" {
			return p.errorf("empty section header")
		}
		return nil
	}
	if p.sect == "" && p.cur.Statement == "" && len(p.lines) == 0 && strings.HasPrefix(line, "#") {
		p.cur.Comments = append(p.cur.Comments, strings.TrimSpace(strings.TrimPrefix(line, "#")))
		return nil
	}
	p.lines = append(p.lines, line)
	return nil
}

func (p *parser) endSection() error {
	lines := p.lines
	p.lines = nil

	switch {
	case p.sect == "":
		p.cur.Statement = strings.TrimSpace(strings.Join(lines, "\n"))
		if p.cur.Statement == "" {
			return p.errorAt(p.start, "test case has no statement")
		}

	case p.sect == sectionOptions:
		if p.cur.Options != nil {
			return p.errorAt(p.at, "duplicate %s section", sectionOptions)
		}
		var o options.QueryOptions
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if l == "" || strings.HasPrefix(l, "#") {
				continue
			}
			name, value, ok := strings.Cut(l, "=")
			if !ok {
				return p.errorAt(p.at, "malformed query option %q, want name=value", l)
			}
			if err := o.Set(name, value); err != nil {
				return p.errorAt(p.at, "%w", err)
			}
		}
		p.cur.Options = &o

	case p.sect == sectionDatabase:
		db := strings.TrimSpace(strings.Join(lines, "\n"))
		if db == "" || strings.ContainsAny(db, " \t\n") {
			return p.errorAt(p.at, "%s section must hold exactly one name", sectionDatabase)
		}
		p.cur.Database = db

	case p.sect == sectionPlan || strings.HasPrefix(p.sect, sectionPlan+" "):
		b := Block{Text: trimTrailingBlankLines(lines)}
		if lvl := strings.TrimSpace(strings.TrimPrefix(p.sect, sectionPlan)); lvl != "" {
			l, err := options.ParseExplainLevel(lvl)
			if err != nil {
				return p.errorAt(p.at, "section %q: %w", p.sect, err)
			}
			b.Level = options.Some(l)
		}
		for _, existing := range p.cur.Expected {
			if existing.Level == b.Level {
				return p.errorAt(p.at, "duplicate section %q", b.Header())
			}
		}
		p.cur.Expected = append(p.cur.Expected, b)

	default:
		return p.errorAt(p.at, "unknown section %q", p.sect)
	}
	return nil
}

func (p *parser) endCase() error {
	if p.cur == nil {
		return nil
	}
	if err := p.endSection(); err != nil {
		return err
	}
	c := p.cur
	c.Line = p.start
	p.cur, p.sect = nil, ""
	if len(c.Expected) == 0 {
		return &LoadError{Name: p.name, Line: c.Line, Err: fmt.Errorf("test case has no %s section", sectionPlan)}
	}
	p.spec.Cases = append(p.spec.Cases, *c)
	return nil
}

func trimTrailingBlankLines(lines []string) string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
