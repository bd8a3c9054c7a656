package options

// Documented defaults for every option that has one.
const (
	DefaultNumNodes                        int32             = 0
	DefaultMemLimit                        int64             = 0
	DefaultRuntimeFilterMode               RuntimeFilterMode = RuntimeFilterLocal
	DefaultExecSingleNodeRowsThreshold     int32             = 0
	DefaultDisableStreamingPreaggregations                   = false
	DefaultOptimizePartitionKeyScans                         = false
	DefaultExplainLevel                    ExplainLevel      = ExplainStandard
)

// QueryOptions is the set of planner options for one statement.
//
// Fields left unset take their documented default when read through the
// *OrDefault accessors. MtDop has no default.
type QueryOptions struct {
	// MtDop is the requested parallelism degree (mt_dop).
	MtDop Optional[int32]

	// NumNodes limits the number of executor nodes; 0 means all nodes,
	// 1 forces a single-node plan.
	NumNodes Optional[int32]

	// MemLimit is the per-node memory limit in bytes; 0 means no limit.
	MemLimit Optional[int64]

	RuntimeFilterMode Optional[RuntimeFilterMode]

	// ExecSingleNodeRowsThreshold is the estimated row count below which the
	// planner produces a single-node plan; 0 disables the optimisation.
	ExecSingleNodeRowsThreshold Optional[int32]

	DisableStreamingPreaggregations Optional[bool]
	OptimizePartitionKeyScans       Optional[bool]
	ExplainLevel                    Optional[ExplainLevel]
}

// Defaults returns options with every defaulted option explicitly set.
// MtDop stays unset.
func Defaults() QueryOptions {
	return QueryOptions{
		NumNodes:                        Some(DefaultNumNodes),
		MemLimit:                        Some(DefaultMemLimit),
		RuntimeFilterMode:               Some(DefaultRuntimeFilterMode),
		ExecSingleNodeRowsThreshold:     Some(DefaultExecSingleNodeRowsThreshold),
		DisableStreamingPreaggregations: Some(DefaultDisableStreamingPreaggregations),
		OptimizePartitionKeyScans:       Some(DefaultOptimizePartitionKeyScans),
		ExplainLevel:                    Some(DefaultExplainLevel),
	}
}

// Resolve overlays override onto base. Every option set in override replaces
// the one in base; everything else is taken from base. Neither input is
// modified. Resolve(base, nil) returns base.
func Resolve(base QueryOptions, override *QueryOptions) QueryOptions {
	if override == nil {
		return base
	}
	o := *override
	return QueryOptions{
		MtDop:                           o.MtDop.Or(base.MtDop),
		NumNodes:                        o.NumNodes.Or(base.NumNodes),
		MemLimit:                        o.MemLimit.Or(base.MemLimit),
		RuntimeFilterMode:               o.RuntimeFilterMode.Or(base.RuntimeFilterMode),
		ExecSingleNodeRowsThreshold:     o.ExecSingleNodeRowsThreshold.Or(base.ExecSingleNodeRowsThreshold),
		DisableStreamingPreaggregations: o.DisableStreamingPreaggregations.Or(base.DisableStreamingPreaggregations),
		OptimizePartitionKeyScans:       o.OptimizePartitionKeyScans.Or(base.OptimizePartitionKeyScans),
		ExplainLevel:                    o.ExplainLevel.Or(base.ExplainLevel),
	}
}

// WithExplainLevel returns a copy of o at the given explain level.
func (o QueryOptions) WithExplainLevel(level ExplainLevel) QueryOptions {
	o.ExplainLevel = Some(level)
	return o
}

// WithMtDop returns a copy of o with mt_dop replaced by degree, which may be unset.
func (o QueryOptions) WithMtDop(degree Optional[int32]) QueryOptions {
	o.MtDop = degree
	return o
}

func (o QueryOptions) NumNodesOrDefault() int32 { return o.NumNodes.OrElse(DefaultNumNodes) }

func (o QueryOptions) MemLimitOrDefault() int64 { return o.MemLimit.OrElse(DefaultMemLimit) }

func (o QueryOptions) RuntimeFilterModeOrDefault() RuntimeFilterMode {
	return o.RuntimeFilterMode.OrElse(DefaultRuntimeFilterMode)
}

func (o QueryOptions) ExecSingleNodeRowsThresholdOrDefault() int32 {
	return o.ExecSingleNodeRowsThreshold.OrElse(DefaultExecSingleNodeRowsThreshold)
}

func (o QueryOptions) DisableStreamingPreaggregationsOrDefault() bool {
	return o.DisableStreamingPreaggregations.OrElse(DefaultDisableStreamingPreaggregations)
}

func (o QueryOptions) OptimizePartitionKeyScansOrDefault() bool {
	return o.OptimizePartitionKeyScans.OrElse(DefaultOptimizePartitionKeyScans)
}

func (o QueryOptions) ExplainLevelOrDefault() ExplainLevel {
	return o.ExplainLevel.OrElse(DefaultExplainLevel)
}

// IsZero reports whether no option is set.
func (o QueryOptions) IsZero() bool {
	return o == QueryOptions{}
}
