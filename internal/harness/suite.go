package harness

import (
	"context"
	"fmt"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/options"
)

// Suite binds a specification file to the options and environment it runs
// with.
type Suite struct {
	Name string
	// File is the specification name in the golden store. Empty means the
	// suite only runs degree checks.
	File     string
	Database string
	Options  options.QueryOptions
	// Requires adds to the capabilities the specification itself requires.
	Requires []capability.Feature
	// TestMode overrides the process test mode for this suite when set.
	TestMode     *bool
	Setup        []SetupStep
	DegreeChecks []DegreeCheck
}

// SetupStep prepares catalog objects before a suite runs.
type SetupStep struct {
	CreateViews *CreateViews
}

// CreateViews creates one view in Database for every table of From,
// selecting all columns of the source table.
type CreateViews struct {
	Database string
	From     string
}

// DegreeCheck verifies the parallelism policy for Statement at each degree.
type DegreeCheck struct {
	Statement string
	Degrees   []options.Optional[int32]
}

// DegreeGrid returns an unset degree followed by each value.
func DegreeGrid(values ...int32) []options.Optional[int32] {
	grid := []options.Optional[int32]{options.None[int32]()}
	for _, v := range values {
		grid = append(grid, options.Some(v))
	}
	return grid
}

// DefaultDegrees is the mt_dop grid used when a check lists no degrees.
var DefaultDegrees = []int32{-1, 0, 1, 16}

// setup runs the suite's setup steps in order. Views are created through the
// planner, so a definition it rejects fails the suite, and then recorded in
// the catalog.
func (d *Driver) setup(ctx context.Context, s Suite, testMode bool) error {
	for i, step := range s.Setup {
		if step.CreateViews == nil {
			return fmt.Errorf("setup step %d: no action", i+1)
		}
		if err := d.createViews(ctx, *step.CreateViews, testMode); err != nil {
			return fmt.Errorf("setup step %d: %w", i+1, err)
		}
	}
	return nil
}

func (d *Driver) createViews(ctx context.Context, cv CreateViews, testMode bool) error {
	if d.Catalog == nil {
		return fmt.Errorf("create views in %s: no catalog", cv.Database)
	}
	tables, err := d.Catalog.Tables(ctx, cv.From)
	if err != nil {
		return fmt.Errorf("create views from %s: %w", cv.From, err)
	}
	if err := d.Catalog.CreateDatabase(ctx, cv.Database, fmt.Sprintf("Views over %s.", cv.From)); err != nil {
		return err
	}

	scope := Scope{Database: cv.Database}
	for _, t := range tables {
		def := fmt.Sprintf("create view %s.%s as select * from %s.%s", cv.Database, t, cv.From, t)
		if _, err := Capture(ctx, d.Planner, def, options.Defaults(), scope, testMode); err != nil {
			return err
		}
		if err := d.Catalog.CreateView(ctx, cv.Database, t, def); err != nil {
			return err
		}
	}
	d.logger().Debug("created views", "database", cv.Database, "from", cv.From, "count", len(tables))
	return nil
}

// checkDegrees runs every degree check of s and folds the results into
// report, one case per statement and degree.
func (d *Driver) checkDegrees(ctx context.Context, report *Report, s Suite, testMode bool) {
	scope := &Scope{Database: s.Database}
	for _, check := range s.DegreeChecks {
		degrees := check.Degrees
		if len(degrees) == 0 {
			degrees = DegreeGrid(DefaultDegrees...)
		}
		for _, user := range degrees {
			res, err := d.checkDegree(ctx, check.Statement, user, scope, testMode)
			switch {
			case err != nil:
				report.Failed++
				report.addFailure(Failure{Statement: check.Statement, Message: fmt.Sprintf("mt_dop=%s: %v", user, err)})
			case !res.Match():
				report.Failed++
				report.addFailure(Failure{
					Statement: check.Statement,
					Expected:  fmt.Sprint(res.Want),
					Actual:    res.Got.String(),
					Message:   fmt.Sprintf("mt_dop=%s: effective degree %d, planner used %s", user, res.Want, res.Got),
				})
			default:
				report.Passed++
			}
		}
	}
}
