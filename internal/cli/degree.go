package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/parallelism"
)

// DegreeOptions holds flags for the degree command.
type DegreeOptions struct {
	*RootOptions
	MtDop    string // empty leaves mt_dop unset
	Database string // empty uses the config's default database
}

// DegreeReport is the JSON payload of the degree command.
type DegreeReport struct {
	Statement string `json:"statement"`
	Kind      string `json:"kind"`
	Table     string `json:"table,omitempty"`
	Format    string `json:"format,omitempty"`
	MtDop     string `json:"mt_dop"`
	Expected  int32  `json:"expected"`
	// Planner is the degree of the planner's exec request. Absent when no
	// planner is configured.
	Planner *string `json:"planner,omitempty"`
	Match   *bool   `json:"match,omitempty"`
}

// NewDegreeCommand creates the degree command.
func NewDegreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DegreeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "degree <statement>",
		Short: "Show or verify the effective parallelism degree",
		Long: `Show the parallelism degree (mt_dop) a statement runs with.

An explicit --mt-dop always wins. Otherwise COMPUTE STATS on a PARQUET table
runs with degree 4 and everything else with 0. Table formats come from the
catalog in the config file. When a planner is configured the statement is
planned and the degree of its exec request is compared.

Exit codes:
  0 - Degree shown, or planner agrees
  1 - Planner applied a different degree
  2 - Command error

Examples:
  plantest degree 'compute stats tpch_parquet.lineitem'
  plantest degree --mt-dop 0 'compute stats lineitem' --db tpch_parquet`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkDegree(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MtDop, "mt-dop", "", "explicit mt_dop (default unset)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database for unqualified table names")

	return cmd
}

func checkDegree(opts *DegreeOptions, stmt string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	user := options.None[int32]()
	if opts.MtDop != "" {
		v, err := strconv.ParseInt(opts.MtDop, 10, 32)
		if err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid --mt-dop %q: must be an integer", opts.MtDop))
		}
		user = options.Some(int32(v))
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	db := opts.Database
	if db == "" {
		db = s.cfg.Database
	}
	scope := &harness.Scope{Database: db}

	var res *harness.DegreeResult
	if s.driver.Planner != nil {
		res, err = s.driver.CheckDegree(ctx, stmt, user, scope)
	} else {
		res, err = policyDegree(cmd, s, stmt, user, db)
	}
	if err != nil {
		return commandError(s.out, ErrCodePlanner, "degree check failed", err)
	}

	report := DegreeReport{
		Statement: stmt,
		Kind:      res.Kind.String(),
		MtDop:     res.User.String(),
		Expected:  res.Want,
	}
	if res.Kind == parallelism.KindComputeStats {
		report.Table = res.Table.String()
		report.Format = res.Format.String()
	}
	verified := s.driver.Planner != nil
	if verified {
		got := res.Got.String()
		match := res.Match()
		report.Planner = &got
		report.Match = &match
	}

	var failure *CLIError
	if verified && !res.Match() {
		failure = &CLIError{Code: ErrCodeFailed, Message: res.String()}
	}
	err = s.out.Result(report, failure, func(w io.Writer) {
		writeDegreeReport(w, report)
	})
	if err != nil {
		return err
	}
	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

// policyDegree applies the parallelism policy without a planner.
func policyDegree(cmd *cobra.Command, s *session, stmt string, user options.Optional[int32], db string) (*harness.DegreeResult, error) {
	kind, ref := parallelism.Classify(stmt)
	res := &harness.DegreeResult{Statement: stmt, User: user, Kind: kind}
	if kind == parallelism.KindComputeStats {
		res.Table = ref.Qualify(db)
		format, err := s.store.TableFormat(cmd.Context(), res.Table.Database, res.Table.Table)
		if err != nil {
			return nil, err
		}
		res.Format = format
	}
	res.Want = parallelism.EffectiveDegree(user, kind, res.Format)
	return res, nil
}

func writeDegreeReport(w io.Writer, r DegreeReport) {
	fmt.Fprintf(w, "Statement: %s\n", r.Statement)
	fmt.Fprintf(w, "Kind:      %s\n", r.Kind)
	if r.Table != "" {
		fmt.Fprintf(w, "Table:     %s (%s)\n", r.Table, r.Format)
	}
	fmt.Fprintf(w, "mt_dop:    %s\n", r.MtDop)
	fmt.Fprintf(w, "Expected:  %d\n", r.Expected)
	if r.Planner == nil {
		return
	}
	mark := "✓"
	if !*r.Match {
		mark = "✗"
	}
	fmt.Fprintf(w, "Planner:   %s %s\n", *r.Planner, mark)
}
