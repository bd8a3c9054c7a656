package options

import (
	"fmt"
	"strings"
)

// ExplainLevel is the verbosity of the textual plan.
type ExplainLevel int

const (
	ExplainMinimal ExplainLevel = iota
	ExplainStandard
	ExplainExtended
	ExplainVerbose
)

var explainLevelNames = []string{"MINIMAL", "STANDARD", "EXTENDED", "VERBOSE"}

func (l ExplainLevel) String() string {
	if l < 0 || int(l) >= len(explainLevelNames) {
		return fmt.Sprintf("ExplainLevel(%d)", int(l))
	}
	return explainLevelNames[l]
}

// ExplainLevels returns all levels from least to most verbose.
func ExplainLevels() []ExplainLevel {
	return []ExplainLevel{ExplainMinimal, ExplainStandard, ExplainExtended, ExplainVerbose}
}

// ParseExplainLevel accepts a level name (case-insensitive) or its numeric form.
func ParseExplainLevel(s string) (ExplainLevel, error) {
	s = strings.TrimSpace(s)
	for i, name := range explainLevelNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(i) {
			return ExplainLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown explain level %q", s)
}

// RuntimeFilterMode controls where the planner places runtime filters.
type RuntimeFilterMode int

const (
	RuntimeFilterOff RuntimeFilterMode = iota
	RuntimeFilterLocal
	RuntimeFilterGlobal
)

var runtimeFilterModeNames = []string{"OFF", "LOCAL", "GLOBAL"}

func (m RuntimeFilterMode) String() string {
	if m < 0 || int(m) >= len(runtimeFilterModeNames) {
		return fmt.Sprintf("RuntimeFilterMode(%d)", int(m))
	}
	return runtimeFilterModeNames[m]
}

// ParseRuntimeFilterMode accepts a mode name (case-insensitive) or its numeric form.
func ParseRuntimeFilterMode(s string) (RuntimeFilterMode, error) {
	s = strings.TrimSpace(s)
	for i, name := range runtimeFilterModeNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(i) {
			return RuntimeFilterMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown runtime filter mode %q", s)
}
