// Package capability answers whether an optional feature of the planner's
// environment is available, and owns the process-wide test-mode flag.
package capability

import (
	"os"
	"strings"
)

// Feature names an optional integration, such as a storage engine.
type Feature string

const (
	Kudu  Feature = "kudu"
	HBase Feature = "hbase"
	S3    Feature = "s3"
)

// Probe reports whether a feature is available. Implementations must be
// side-effect free.
type Probe interface {
	IsSupported(f Feature) bool
}

// Static is a fixed feature table. Features missing from the table are
// unsupported.
type Static map[Feature]bool

func (s Static) IsSupported(f Feature) bool {
	return s[f]
}

func (s Static) knows(f Feature) bool {
	_, ok := s[f]
	return ok
}

// EnvProbe reads <FEATURE>_IS_SUPPORTED from the environment, e.g.
// KUDU_IS_SUPPORTED=true.
type EnvProbe struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// EnvKey returns the environment variable consulted for f.
func EnvKey(f Feature) string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(string(f)))
	return key + "_IS_SUPPORTED"
}

func (p EnvProbe) IsSupported(f Feature) bool {
	v, _ := p.lookup(EnvKey(f))
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func (p EnvProbe) knows(f Feature) bool {
	_, ok := p.lookup(EnvKey(f))
	return ok
}

func (p EnvProbe) lookup(key string) (string, bool) {
	if p.Lookup != nil {
		return p.Lookup(key)
	}
	return os.LookupEnv(key)
}

// Chain asks each probe in turn. The first probe that has an opinion about a
// feature decides; probes without a notion of "unknown" always decide.
type Chain []Probe

type knower interface {
	knows(f Feature) bool
}

func (c Chain) IsSupported(f Feature) bool {
	for _, p := range c {
		if k, ok := p.(knower); ok && !k.knows(f) {
			continue
		}
		return p.IsSupported(f)
	}
	return false
}

// Missing returns the features of required that p does not support, in order.
func Missing(p Probe, required []Feature) []Feature {
	var missing []Feature
	for _, f := range required {
		if p == nil || !p.IsSupported(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
