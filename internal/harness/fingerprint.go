package harness

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plantest/internal/golden"
)

// domainCase prefixes case fingerprints. The version suffix allows the
// fingerprint inputs to change without colliding with stored history.
const domainCase = "plantest/case/v1"

// CaseID fingerprints a case by suite, statement, database and option
// overrides. It ignores the case's position and expected text, so a case keeps
// its identity when other cases are added or its golden output is rewritten.
func CaseID(suite string, c golden.Case) string {
	fields := map[string]string{
		"suite":     suite,
		"statement": strings.Join(strings.Fields(c.Statement), " "),
		"database":  c.Database,
	}
	if c.Options != nil {
		for k, v := range c.Options.Map() {
			fields["option."+k] = v
		}
	}

	h := sha256.New()
	h.Write([]byte(domainCase))
	h.Write([]byte{0x00})
	h.Write(canonicalObject(fields))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalObject encodes a flat string object with sorted keys, NFC
// normalised strings and no HTML escaping.
func canonicalObject(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(canonicalString(k))
		buf.WriteByte(':')
		buf.Write(canonicalString(fields[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func canonicalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
