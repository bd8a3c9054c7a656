package golden

import (
	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/options"
)

// Specification is a named, ordered list of test cases. It is read-only
// once loaded.
type Specification struct {
	Name string
	// Path is the file the specification was loaded from, if any.
	Path  string
	Cases []Case
	// Requires lists features that must be available for the
	// specification to run at all.
	Requires []capability.Feature
}

// Case is one statement and its expected plans.
type Case struct {
	// Index is the 0-based position in the specification.
	Index int
	// Line is the 1-based line where the case starts.
	Line     int
	Comments []string

	Statement string
	// Options overrides the suite options for this case only.
	Options *options.QueryOptions
	// Database overrides the suite's target database for this case only.
	Database string

	Expected []Block
}

// Block is the expected output at one explain level.
type Block struct {
	// Level is unset for a plain "---- PLAN" block, meaning the case's
	// effective explain level.
	Level options.Optional[options.ExplainLevel]
	Text  string
}

// Header returns the section header that introduces the block.
func (b Block) Header() string {
	if l, ok := b.Level.Get(); ok {
		return sectionPlan + " " + l.String()
	}
	return sectionPlan
}

// Rewrite returns a copy of s where each block's text is replaced by
// actual(caseIndex, blockIndex) when that returns true.
func (s *Specification) Rewrite(actual func(caseIndex, blockIndex int) (string, bool)) *Specification {
	out := *s
	out.Cases = make([]Case, len(s.Cases))
	for i, c := range s.Cases {
		c.Expected = append([]Block(nil), c.Expected...)
		for j := range c.Expected {
			if text, ok := actual(i, j); ok {
				c.Expected[j].Text = text
			}
		}
		out.Cases[i] = c
	}
	return &out
}
