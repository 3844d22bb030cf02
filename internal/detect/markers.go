package detect

import "strings"

// knownMarkers maps address-format substrings to a network label.
var knownMarkers = map[string]string{
	"bc1":  "btc",
	"tb1":  "btc-testnet",
	"ltc1": "ltc",
	"0x":   "evm",
	"lnbc": "lightning",
	"lntb": "lightning-testnet",
}

// DefaultMarkers returns the stock marker substrings.
func DefaultMarkers() []string {
	return []string{"bc1", "0x", "lnbc", "tb1", "ltc1", "lntb"}
}

// MarkerRule fires when the canonical text contains any marker substring.
// Markers are matched against canonical (lowercased) text, so they are
// lowercased on construction.
type MarkerRule struct {
	markers []string
}

// NewMarkerRule builds a marker rule, dropping empty and duplicate markers.
func NewMarkerRule(markers ...string) *MarkerRule {
	seen := make(map[string]bool, len(markers))
	r := &MarkerRule{}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		r.markers = append(r.markers, m)
	}
	return r
}

// Name implements Rule.
func (r *MarkerRule) Name() string { return "marker" }

// Markers returns the active markers.
func (r *MarkerRule) Markers() []string {
	return append([]string(nil), r.markers...)
}

// Match implements Rule.
func (r *MarkerRule) Match(s Sample) (Match, bool) {
	for _, m := range r.markers {
		if strings.Contains(s.Canonical, m) {
			return Match{Rule: r.Name(), Chain: knownMarkers[m], Detail: "marker=" + m}, true
		}
	}
	return Match{}, false
}
