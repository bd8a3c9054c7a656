// Package parallelism derives the effective parallelism degree (mt_dop) of a
// statement when the user has not chosen one.
package parallelism

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/plantest/internal/options"
)

// ComputeStatsColumnarDegree is the degree applied to COMPUTE STATS on a
// columnar table when mt_dop is unset.
const ComputeStatsColumnarDegree int32 = 4

// StatementKind is the statement class relevant to the parallelism policy.
type StatementKind int

const (
	KindOther StatementKind = iota
	KindComputeStats
)

func (k StatementKind) String() string {
	if k == KindComputeStats {
		return "compute-stats"
	}
	return "other"
}

// TableFormat is the storage format of a statement's target table.
type TableFormat string

const (
	FormatUnknown  TableFormat = ""
	FormatText     TableFormat = "TEXT"
	FormatParquet  TableFormat = "PARQUET"
	FormatKudu     TableFormat = "KUDU"
	FormatHBase    TableFormat = "HBASE"
	FormatAvro     TableFormat = "AVRO"
	FormatSequence TableFormat = "SEQUENCE"
	FormatRC       TableFormat = "RC"
)

var knownFormats = []TableFormat{
	FormatText, FormatParquet, FormatKudu, FormatHBase, FormatAvro, FormatSequence, FormatRC,
}

// Columnar reports whether the format is a columnar file format.
func (f TableFormat) Columnar() bool {
	return f == FormatParquet
}

func (f TableFormat) String() string {
	if f == FormatUnknown {
		return "UNKNOWN"
	}
	return string(f)
}

// ParseTableFormat accepts a format name, case-insensitively.
func ParseTableFormat(s string) (TableFormat, error) {
	for _, f := range knownFormats {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown table format %q", s)
}

// EffectiveDegree returns the parallelism degree a statement runs with.
//
// An explicit user degree always wins, including 0 and negative values.
// Otherwise only COMPUTE STATS on a columnar table gets a non-zero default.
func EffectiveDegree(user options.Optional[int32], kind StatementKind, format TableFormat) int32 {
	if v, ok := user.Get(); ok {
		return v
	}
	if kind == KindComputeStats && format.Columnar() {
		return ComputeStatsColumnarDegree
	}
	return 0
}

// TableRef names a table, optionally qualified by database.
type TableRef struct {
	Database string
	Table    string
}

// Qualify fills in db when the reference is unqualified.
func (r TableRef) Qualify(db string) TableRef {
	if r.Database == "" {
		r.Database = db
	}
	return r
}

func (r TableRef) String() string {
	if r.Database == "" {
		return r.Table
	}
	return r.Database + "." + r.Table
}

var computeStatsRe = regexp.MustCompile(`(?is)^\s*compute\s+(?:incremental\s+)?stats\s+` +
	"`?([A-Za-z_][A-Za-z0-9_]*)`?" + "(?:\\.`?([A-Za-z_][A-Za-z0-9_]*)`?)?")

// Classify returns the statement kind and, for COMPUTE STATS, its target table.
func Classify(stmt string) (StatementKind, TableRef) {
	m := computeStatsRe.FindStringSubmatch(stmt)
	if m == nil {
		return KindOther, TableRef{}
	}
	if m[2] == "" {
		return KindComputeStats, TableRef{Table: m[1]}
	}
	return KindComputeStats, TableRef{Database: m[1], Table: m[2]}
}
