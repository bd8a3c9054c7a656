package golden

import (
	"bytes"
	"sort"
)

// Format renders s in the file format read by Parse.
func Format(s *Specification) []byte {
	var buf bytes.Buffer
	for _, c := range s.Cases {
		for _, comment := range c.Comments {
			buf.WriteString("# " + comment + "\n")
		}
		buf.WriteString(c.Statement + "\n")

		if c.Options != nil {
			buf.WriteString(sectionPrefix + sectionOptions + "\n")
			m := c.Options.Map()
			names := make([]string, 0, len(m))
			for name := range m {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				buf.WriteString(name + "=" + m[name] + "\n")
			}
		}
		if c.Database != "" {
			buf.WriteString(sectionPrefix + sectionDatabase + "\n")
			buf.WriteString(c.Database + "\n")
		}
		for _, b := range c.Expected {
			buf.WriteString(sectionPrefix + b.Header() + "\n")
			if b.Text != "" {
				buf.WriteString(b.Text + "\n")
			}
		}
		buf.WriteString(caseSeparator + "\n")
	}
	return buf.Bytes()
}
