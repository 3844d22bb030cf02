package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(c *Classifier, raw, canonical string) (Match, bool) {
	if canonical == "" {
		canonical = raw
	}
	return c.Classify(raw, canonical)
}

func TestDefaultMarkers(t *testing.T) {
	c := New(NewMarkerRule(DefaultMarkers()...))

	tests := []struct {
		canonical string
		sensitive bool
		chain     string
	}{
		{"bc1qexampleaddress", true, "btc"},
		{"send to 0xdeadbeef please", true, "evm"},
		{"lnbc2500u1pvjluez", true, "lightning"},
		{"tb1qtestnet", true, "btc-testnet"},
		{"ltc1qsomething", true, "ltc"},
		{"hello world", false, ""},
		{"", false, ""},
	}

	for _, test := range tests {
		t.Run(test.canonical, func(t *testing.T) {
			m, ok := classify(c, test.canonical, test.canonical)
			assert.Equal(t, test.sensitive, ok)
			assert.Equal(t, test.chain, m.Chain)
		})
	}
}

func TestMarkerRuleNormalizesMarkers(t *testing.T) {
	r := NewMarkerRule(" XRP ", "xrp", "", "Bc1")
	assert.Equal(t, []string{"xrp", "bc1"}, r.Markers())

	m, ok := r.Match(Sample{Canonical: "rxrpaddr"})
	require.True(t, ok)
	assert.Equal(t, "marker", m.Rule)
	assert.Equal(t, "", m.Chain)
	assert.Equal(t, "marker=xrp", m.Detail)
}

func TestBech32Rule(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		ok      bool
		variant string
	}{
		{"segwit v0", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", true, "checksum=bech32"},
		{"segwit v0 upper", "BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4", true, "checksum=bech32"},
		{"taproot", "pay bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0 now", true, "checksum=bech32m"},
		{"bad checksum", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5", false, ""},
		{"mixed case", "bc1qW508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", false, ""},
		{"too short", "bc1qxyz", false, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, ok := Bech32Rule{}.Match(Sample{Raw: test.raw})
			assert.Equal(t, test.ok, ok)
			if test.ok {
				assert.Equal(t, "btc", m.Chain)
				assert.Equal(t, test.variant, m.Detail)
			}
		})
	}
}

func TestBase58CheckRule(t *testing.T) {
	m, ok := Base58CheckRule{}.Match(Sample{Raw: "genesis: 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"})
	require.True(t, ok)
	assert.Equal(t, "btc", m.Chain)

	m, ok = Base58CheckRule{}.Match(Sample{Raw: "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy"})
	require.True(t, ok)
	assert.Equal(t, "btc", m.Chain)

	_, ok = Base58CheckRule{}.Match(Sample{Raw: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"})
	assert.False(t, ok, "checksum mismatch")

	_, ok = Base58CheckRule{}.Match(Sample{Raw: "0OIl is not base58 at all and is short"})
	assert.False(t, ok)
}

func TestEVMRule(t *testing.T) {
	tests := []struct {
		raw    string
		ok     bool
		detail string
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true, "checksum=valid"},
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", true, "checksum=invalid"},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true, "checksum=none"},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea", false, ""},
		{"0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed", false, ""},
	}

	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			m, ok := EVMRule{}.Match(Sample{Raw: test.raw})
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.detail, m.Detail)
		})
	}
}

func TestDefaultClassifierUsesValidatorsWithoutMarkers(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"marker", "bech32", "base58check", "solana", "evm"}, c.Rules())

	m, ok := classify(c, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", "1a1zp1ep5qgefi2dmptftl5slmv7divfna")
	require.True(t, ok)
	assert.Equal(t, "base58check", m.Rule)

	_, ok = classify(c, "just some prose", "justsomeprose")
	assert.False(t, ok)
}

func TestClassifierWith(t *testing.T) {
	base := New(NewMarkerRule("bc1"))
	extended := base.With(NewMarkerRule("xrp"))

	_, ok := classify(base, "xrpaddr", "")
	assert.False(t, ok)
	_, ok = classify(extended, "xrpaddr", "")
	assert.True(t, ok)
	assert.Len(t, base.Rules(), 1, "With must not mutate the receiver")
}

func TestMatchString(t *testing.T) {
	m := Match{Rule: "evm", Chain: "evm", Detail: "checksum=valid"}
	assert.Equal(t, "rule=evm chain=evm checksum=valid", m.String())
	assert.Equal(t, "rule=marker", Match{Rule: "marker"}.String())
}

func TestValidatorsSeeThroughSplicedSeparators(t *testing.T) {
	c := Default()
	canonical := "1a1zp1ep5qgefi2dmptftl5slmv7divfna"

	tests := []struct {
		name string
		raw  string
	}{
		{"plain", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
		{"zero-width space", "1A1zP1eP5QGefi2\u200bDMPTfTL5SLmv7DivfNa"},
		{"zero-width joiner", "1A1zP1eP5\u200dQGefi2DMPTfTL5\u200dSLmv7DivfNa"},
		{"byte-order mark", "\ufeff1A1zP1eP5QGefi2\ufeffDMPTfTL5SLmv7DivfNa"},
		{"space", "1A1zP1eP5QGefi2 DMPTfTL5SLmv7DivfNa"},
		{"tab and newline", "send to 1A1zP1eP5\tQGefi2\nDMPTfTL5SLmv7DivfNa please"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, ok := c.Classify(test.raw, canonical)
			require.True(t, ok)
			assert.Equal(t, "base58check", m.Rule)
			assert.Equal(t, "btc", m.Chain)
		})
	}
}

func TestBech32RuleSeesThroughZeroWidth(t *testing.T) {
	m, ok := Bech32Rule{}.Match(Sample{Raw: "bc1qw508d6qejx\u200btdg4y5r3zarvary0c5xw7kv8f3t4"})
	require.True(t, ok)
	assert.Equal(t, "checksum=bech32", m.Detail)
}

func TestSolanaRule(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"usdc mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"wrapped sol", "send So11111111111111111111111111111111111111112 now", true},
		{"system program", "11111111111111111111111111111111", true},
		{"zero-width inside", "EPjFWdd5AufqSSqe\u200bM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"too short", "EPjFWdd5AufqSSqeM2qN1xzy", false},
		{"not base58", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt10", false},
		{"prose", "meet me at the cafe near the station tomorrow morning for breakfast", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, ok := SolanaRule{}.Match(Sample{Raw: test.raw})
			assert.Equal(t, test.ok, ok)
			if test.ok {
				assert.Equal(t, "sol", m.Chain)
			}
		})
	}
}

func TestProseIsNotSensitive(t *testing.T) {
	raw := "meet me at the cafe near the station tomorrow morning for breakfast"
	_, ok := Default().Classify(raw, "meetmeatthecafenearthestationtomorrowmorningforbreakfast")
	assert.False(t, ok)
}
