package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden renders summary and compares it against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, summary *Summary) {
	t.Helper()

	var buf bytes.Buffer
	WriteSummary(&buf, summary, true)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
