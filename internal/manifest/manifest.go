// Package manifest loads the suite catalogue.
//
// The catalogue is a CUE file with one entry per suite under the top-level
// "suite" field:
//
//	suite: aggregation: {}
//	suite: tpch: db: "tpch"
//	suite: "mt-dop-validation": {options: mt_dop: 3, test_mode: false}
//	suite: kudu: requires: ["kudu"]
//
// Entries are validated against a closed schema, so a misspelled field or
// option name is rejected when the catalogue is loaded rather than when the
// suite runs.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"go.uber.org/multierr"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/options"
)

//go:embed schema.cue
var schemaSrc string

// Error is an invalid manifest entry.
type Error struct {
	// Suite is empty for errors not tied to one suite.
	Suite string
	Pos   token.Pos
	Err   error
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Suite != "" {
		msg = fmt.Sprintf("suite %q: %s", e.Suite, msg)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the manifest at path and returns its suites in declaration
// order. Every invalid entry is reported; use multierr.Errors to split the
// returned error.
func Load(path string) ([]harness.Suite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Err: fmt.Errorf("manifest not found: %w", err)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{filepath.Base(path)}, &load.Config{Dir: filepath.Dir(path)})
	if len(instances) == 0 {
		return nil, &Error{Err: fmt.Errorf("no CUE instances loaded from %s", path)}
	}
	if err := instances[0].Err; err != nil {
		return nil, convertCUEError("", err)
	}
	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, convertCUEError("", err)
	}
	return decode(ctx, value)
}

// Parse reads a manifest from CUE source. filename is used in positions.
func Parse(filename string, src []byte) ([]harness.Suite, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, convertCUEError("", err)
	}
	return decode(ctx, value)
}

func decode(ctx *cue.Context, value cue.Value) ([]harness.Suite, error) {
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEError("", err)
	}

	suitesVal := unified.LookupPath(cue.ParsePath("suite"))
	if !suitesVal.Exists() {
		return []harness.Suite{}, nil
	}
	iter, err := suitesVal.Fields()
	if err != nil {
		return nil, convertCUEError("", err)
	}

	var (
		suites []harness.Suite
		errs   error
	)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		s, err := decodeSuite(name, iter.Value())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		suites = append(suites, s)
	}
	if errs != nil {
		return nil, errs
	}
	if suites == nil {
		suites = []harness.Suite{}
	}
	return suites, nil
}

var suiteFields = map[string]bool{
	"file": true, "db": true, "options": true, "requires": true,
	"test_mode": true, "setup": true, "degree_checks": true,
}

type rawSuite struct {
	File         string           `json:"file"`
	DB           string           `json:"db"`
	Requires     []string         `json:"requires"`
	TestMode     *bool            `json:"test_mode"`
	Setup        []rawSetupStep   `json:"setup"`
	DegreeChecks []rawDegreeCheck `json:"degree_checks"`
}

type rawSetupStep struct {
	CreateViews *struct {
		DB   string `json:"db"`
		From string `json:"from"`
	} `json:"create_views"`
}

type rawDegreeCheck struct {
	Stmt  string  `json:"stmt"`
	MtDop []int32 `json:"mt_dop"`
}

func decodeSuite(name string, v cue.Value) (harness.Suite, error) {
	fail := func(pos token.Pos, err error) (harness.Suite, error) {
		return harness.Suite{}, &Error{Suite: name, Pos: pos, Err: err}
	}

	fields, err := v.Fields()
	if err != nil {
		return harness.Suite{}, convertCUEError(name, err)
	}
	for fields.Next() {
		label := fields.Selector().Unquoted()
		if !suiteFields[label] {
			return fail(fields.Value().Pos(), fmt.Errorf("unknown field %q", label))
		}
	}

	var raw rawSuite
	if err := v.Decode(&raw); err != nil {
		return harness.Suite{}, convertCUEError(name, err)
	}

	s := harness.Suite{
		Name:     name,
		File:     raw.File,
		Database: raw.DB,
		TestMode: raw.TestMode,
	}
	if s.File == "" && len(raw.DegreeChecks) == 0 {
		s.File = name
	}

	if opts := v.LookupPath(cue.ParsePath("options")); opts.Exists() {
		s.Options, err = decodeOptions(opts)
		if err != nil {
			return fail(opts.Pos(), err)
		}
	}

	for _, f := range raw.Requires {
		s.Requires = append(s.Requires, capability.Feature(f))
	}
	for _, step := range raw.Setup {
		if step.CreateViews == nil {
			return fail(v.Pos(), fmt.Errorf("setup step without an action"))
		}
		s.Setup = append(s.Setup, harness.SetupStep{CreateViews: &harness.CreateViews{
			Database: step.CreateViews.DB,
			From:     step.CreateViews.From,
		}})
	}
	for _, dc := range raw.DegreeChecks {
		check := harness.DegreeCheck{Statement: dc.Stmt}
		if len(dc.MtDop) > 0 {
			check.Degrees = harness.DegreeGrid(dc.MtDop...)
		}
		s.DegreeChecks = append(s.DegreeChecks, check)
	}
	return s, nil
}

// decodeOptions converts the options struct to its string form and parses it
// with the option resolver, which owns option names and value syntax.
func decodeOptions(v cue.Value) (options.QueryOptions, error) {
	values := make(map[string]string)
	iter, err := v.Fields()
	if err != nil {
		return options.QueryOptions{}, err
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		field := iter.Value()
		switch field.Kind() {
		case cue.IntKind:
			n, err := field.Int64()
			if err != nil {
				return options.QueryOptions{}, fmt.Errorf("option %s: %w", name, err)
			}
			values[name] = strconv.FormatInt(n, 10)
		case cue.BoolKind:
			b, _ := field.Bool()
			values[name] = strconv.FormatBool(b)
		case cue.StringKind:
			values[name], _ = field.String()
		default:
			return options.QueryOptions{}, fmt.Errorf("option %s: unsupported value kind %v", name, field.Kind())
		}
	}
	return options.Parse(values)
}

// convertCUEError splits a CUE error into one Error per underlying error.
func convertCUEError(suite string, err error) error {
	var errs error
	for _, e := range cueerrors.Errors(err) {
		var pos token.Pos
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			pos = positions[0]
		}
		errs = multierr.Append(errs, &Error{Suite: suite, Pos: pos, Err: e})
	}
	if errs == nil {
		return &Error{Suite: suite, Err: err}
	}
	return errs
}
