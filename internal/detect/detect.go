// Package detect decides whether clipboard text looks like a payment address
// and therefore needs an explicit bind before it may stay on the clipboard.
//
// Rules may over-match; they must never miss a supported address format.
// New formats are added as Rules without touching the clipboard monitor.
package detect

import "strings"

// Sample is the text under evaluation in both of its forms. Markers look at
// the canonical form; checksum validators need the raw, case-preserving text.
type Sample struct {
	Raw       string
	Canonical string

	candidates []string
	hidden     []string
}

// Candidates returns the address-shaped substrings of Raw that checksum
// validators test: every token and every run of consecutive tokens up to
// maxAddressLen bytes, so separators spliced into an address are seen
// through.
func (s Sample) Candidates() []string {
	if s.candidates == nil {
		return candidates(s.Raw, false)
	}
	return s.candidates
}

// Hidden is like Candidates but only joins tokens across separators that
// render as nothing: zero-width characters, byte-order marks and control
// bytes other than tab and line breaks. Rules without a checksum use it.
func (s Sample) Hidden() []string {
	if s.hidden == nil {
		return candidates(s.Raw, true)
	}
	return s.hidden
}

// Match describes why a sample was classified sensitive.
type Match struct {
	Rule   string // rule that fired
	Chain  string // best-effort network label, empty when unknown
	Detail string // rule specific annotation, e.g. checksum state
}

// String renders the match for audit records.
func (m Match) String() string {
	var b strings.Builder
	b.WriteString("rule=")
	b.WriteString(m.Rule)
	if m.Chain != "" {
		b.WriteString(" chain=")
		b.WriteString(m.Chain)
	}
	if m.Detail != "" {
		b.WriteString(" ")
		b.WriteString(m.Detail)
	}
	return b.String()
}

// Rule is one sensitivity predicate.
type Rule interface {
	Name() string
	Match(s Sample) (Match, bool)
}

// Classifier evaluates rules in order and reports the first hit.
type Classifier struct {
	rules []Rule
}

// New returns a classifier over rules.
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Default returns the stock classifier: the default markers followed by the
// checksum validators.
func Default() *Classifier {
	return New(append([]Rule{NewMarkerRule(DefaultMarkers()...)}, Validators()...)...)
}

// Validators returns the checksum-validating address rules.
func Validators() []Rule {
	return []Rule{Bech32Rule{}, Base58CheckRule{}, SolanaRule{}, EVMRule{}}
}

// With returns a copy of c with extra rules appended.
func (c *Classifier) With(rules ...Rule) *Classifier {
	return New(append(append([]Rule(nil), c.rules...), rules...)...)
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name()
	}
	return names
}

// Classify reports whether the sample is sensitive.
func (c *Classifier) Classify(raw, canonical string) (Match, bool) {
	s := Sample{
		Raw:        raw,
		Canonical:  canonical,
		candidates: candidates(raw, false),
		hidden:     candidates(raw, true),
	}
	for _, r := range c.rules {
		if m, ok := r.Match(s); ok {
			return m, true
		}
	}
	return Match{}, false
}

const (
	// maxScanBytes bounds how much raw text validators look at.
	maxScanBytes = 64 << 10

	// maxAddressLen is the longest encoding any validator accepts (bech32).
	maxAddressLen = 90
)

// span is one alphanumeric token and the separator bytes before it.
type span struct {
	sep string
	tok string
}

func candidates(raw string, hiddenOnly bool) []string {
	if len(raw) > maxScanBytes {
		raw = raw[:maxScanBytes]
	}
	spans := split(raw)
	out := make([]string, 0, len(spans))
	for i, sp := range spans {
		out = append(out, sp.tok)
		run := sp.tok
		for _, next := range spans[i+1:] {
			if len(run)+len(next.tok) > maxAddressLen || (hiddenOnly && !invisible(next.sep)) {
				break
			}
			run += next.tok
			out = append(out, run)
		}
	}
	return out
}

// split cuts raw into maximal ASCII alphanumeric runs, the alphabet shared
// by every address encoding handled here. Non-ASCII bytes are separators.
func split(raw string) []span {
	var (
		spans []span
		start int
		sep   int
	)
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && isAlnum(raw[i]) {
			continue
		}
		if i > start {
			spans = append(spans, span{sep: raw[sep:start], tok: raw[start:i]})
			sep = i
		}
		start = i + 1
	}
	return spans
}

var invisibleSeqs = []string{"\u200b", "\u200d", "\ufeff"}

func invisible(sep string) bool {
	for _, seq := range invisibleSeqs {
		sep = strings.ReplaceAll(sep, seq, "")
	}
	for i := 0; i < len(sep); i++ {
		c := sep[i]
		if c >= 0x20 || c == '\t' || c == '\n' || c == '\r' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
