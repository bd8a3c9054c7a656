package options

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownOption is returned for an option name that is not recognised.
	ErrUnknownOption = errors.New("unknown query option")

	// ErrInvalidValue is returned when a value cannot be parsed for its option.
	ErrInvalidValue = errors.New("invalid query option value")
)

// OptionError describes a rejected option override.
type OptionError struct {
	Name  string
	Value string
	Err   error
}

func (e *OptionError) Error() string {
	if errors.Is(e.Err, ErrUnknownOption) {
		return fmt.Sprintf("%v: %s", ErrUnknownOption, e.Name)
	}
	return fmt.Sprintf("%s=%q: %v", e.Name, e.Value, e.Err)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// definition binds an option name to its field.
type definition struct {
	name string
	set  func(o *QueryOptions, v string) error
	get  func(o QueryOptions) (string, bool)
}

var definitions = []definition{
	{
		name: "mt_dop",
		set:  func(o *QueryOptions, v string) error { return setInt32(&o.MtDop, v) },
		get:  func(o QueryOptions) (string, bool) { return format(o.MtDop) },
	},
	{
		name: "num_nodes",
		set:  func(o *QueryOptions, v string) error { return setInt32(&o.NumNodes, v) },
		get:  func(o QueryOptions) (string, bool) { return format(o.NumNodes) },
	},
	{
		name: "mem_limit",
		set: func(o *QueryOptions, v string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return err
			}
			o.MemLimit = Some(n)
			return nil
		},
		get: func(o QueryOptions) (string, bool) { return format(o.MemLimit) },
	},
	{
		name: "runtime_filter_mode",
		set: func(o *QueryOptions, v string) error {
			m, err := ParseRuntimeFilterMode(v)
			if err != nil {
				return err
			}
			o.RuntimeFilterMode = Some(m)
			return nil
		},
		get: func(o QueryOptions) (string, bool) { return format(o.RuntimeFilterMode) },
	},
	{
		name: "exec_single_node_rows_threshold",
		set:  func(o *QueryOptions, v string) error { return setInt32(&o.ExecSingleNodeRowsThreshold, v) },
		get:  func(o QueryOptions) (string, bool) { return format(o.ExecSingleNodeRowsThreshold) },
	},
	{
		name: "disable_streaming_preaggregations",
		set:  func(o *QueryOptions, v string) error { return setBool(&o.DisableStreamingPreaggregations, v) },
		get:  func(o QueryOptions) (string, bool) { return format(o.DisableStreamingPreaggregations) },
	},
	{
		name: "optimize_partition_key_scans",
		set:  func(o *QueryOptions, v string) error { return setBool(&o.OptimizePartitionKeyScans, v) },
		get:  func(o QueryOptions) (string, bool) { return format(o.OptimizePartitionKeyScans) },
	},
	{
		name: "explain_level",
		set: func(o *QueryOptions, v string) error {
			l, err := ParseExplainLevel(v)
			if err != nil {
				return err
			}
			o.ExplainLevel = Some(l)
			return nil
		},
		get: func(o QueryOptions) (string, bool) { return format(o.ExplainLevel) },
	},
}

func lookup(name string) (definition, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, d := range definitions {
		if d.name == name {
			return d, true
		}
	}
	return definition{}, false
}

// Names returns the recognised option names in declaration order.
func Names() []string {
	names := make([]string, len(definitions))
	for i, d := range definitions {
		names[i] = d.name
	}
	return names
}

// Parse builds QueryOptions from name/value pairs. Names are matched
// case-insensitively. Any unknown name or malformed value is an *OptionError.
func Parse(values map[string]string) (QueryOptions, error) {
	var o QueryOptions
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := o.Set(name, values[name]); err != nil {
			return QueryOptions{}, err
		}
	}
	return o, nil
}

// Set parses value into the named option of o.
func (o *QueryOptions) Set(name, value string) error {
	d, ok := lookup(name)
	if !ok {
		return &OptionError{Name: name, Value: value, Err: ErrUnknownOption}
	}
	if err := d.set(o, value); err != nil {
		return &OptionError{Name: d.name, Value: value, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	return nil
}

// Map returns the set options keyed by name.
func (o QueryOptions) Map() map[string]string {
	m := make(map[string]string)
	for _, d := range definitions {
		if v, ok := d.get(o); ok {
			m[d.name] = v
		}
	}
	return m
}

// String renders the set options as sorted name=value pairs.
func (o QueryOptions) String() string {
	m := o.Map()
	pairs := make([]string, 0, len(m))
	for name, v := range m {
		pairs = append(pairs, name+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func setInt32(dst *Optional[int32], v string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return err
	}
	*dst = Some(int32(n))
	return nil
}

func setBool(dst *Optional[bool], v string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = Some(b)
	return nil
}

func format[T any](o Optional[T]) (string, bool) {
	v, ok := o.Get()
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}
