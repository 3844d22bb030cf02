package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// =============================================================================
// Bech32 / Bech32m (BIP-173, BIP-350)
// =============================================================================

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const (
	bech32Const  = 1
	bech32mConst = 0x2bc830a3
)

var bech32Chains = map[string]string{
	"bc":   "btc",
	"tb":   "btc-testnet",
	"bcrt": "btc-regtest",
	"ltc":  "ltc",
	"tltc": "ltc-testnet",
}

// Bech32Rule fires on segwit addresses with a valid bech32 or bech32m checksum.
type Bech32Rule struct{}

// Name implements Rule.
func (Bech32Rule) Name() string { return "bech32" }

// Match implements Rule.
func (r Bech32Rule) Match(s Sample) (Match, bool) {
	for _, tok := range s.Candidates() {
		hrp, variant, ok := decodeBech32(tok)
		if !ok {
			continue
		}
		chain, known := bech32Chains[hrp]
		if !known {
			continue
		}
		return Match{Rule: r.Name(), Chain: chain, Detail: "checksum=" + variant}, true
	}
	return Match{}, false
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>i)&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

// decodeBech32 validates the checksum of s and returns its human-readable
// part and checksum variant.
func decodeBech32(s string) (hrp, variant string, ok bool) {
	if len(s) < 8 || len(s) > 90 {
		return "", "", false
	}
	lower, upper := strings.ToLower(s), strings.ToUpper(s)
	if s != lower && s != upper {
		return "", "", false
	}
	s = lower

	pos := strings.LastIndexByte(s, '1')
	if pos < 1 || pos+7 > len(s) {
		return "", "", false
	}
	hrp, data := s[:pos], s[pos+1:]

	values := make([]byte, 0, 2*len(hrp)+1+len(data))
	for i := 0; i < len(hrp); i++ {
		values = append(values, hrp[i]>>5)
	}
	values = append(values, 0)
	for i := 0; i < len(hrp); i++ {
		values = append(values, hrp[i]&31)
	}
	for i := 0; i < len(data); i++ {
		v := strings.IndexByte(bech32Charset, data[i])
		if v < 0 {
			return "", "", false
		}
		values = append(values, byte(v))
	}

	switch bech32Polymod(values) {
	case bech32Const:
		return hrp, "bech32", true
	case bech32mConst:
		return hrp, "bech32m", true
	}
	return "", "", false
}

// =============================================================================
// Base58Check legacy addresses
// =============================================================================

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Versions = map[byte]string{
	0x00: "btc",
	0x05: "btc",
	0x6f: "btc-testnet",
	0xc4: "btc-testnet",
	0x30: "ltc",
	0x32: "ltc",
	0x1e: "doge",
	0x16: "doge",
}

// Base58CheckRule fires on 25-byte Base58Check payloads (version, 20-byte
// hash, 4-byte checksum), the shape of legacy BTC/LTC/DOGE addresses.
type Base58CheckRule struct{}

// Name implements Rule.
func (Base58CheckRule) Name() string { return "base58check" }

// Match implements Rule.
func (r Base58CheckRule) Match(s Sample) (Match, bool) {
	for _, tok := range s.Candidates() {
		if len(tok) < 25 || len(tok) > 35 {
			continue
		}
		payload, ok := decodeBase58(tok)
		if !ok || len(payload) != 25 {
			continue
		}
		first := sha256.Sum256(payload[:21])
		second := sha256.Sum256(first[:])
		if string(second[:4]) != string(payload[21:]) {
			continue
		}
		return Match{Rule: r.Name(), Chain: base58Versions[payload[0]], Detail: "checksum=valid"}, true
	}
	return Match{}, false
}

// =============================================================================
// Solana public keys
// =============================================================================

// SolanaRule fires on Base58 strings of 32 to 44 characters that decode to
// a 32-byte public key. There is no checksum, so unrelated identifiers of
// the same shape also match.
type SolanaRule struct{}

// Name implements Rule.
func (SolanaRule) Name() string { return "solana" }

// Match implements Rule.
func (r SolanaRule) Match(s Sample) (Match, bool) {
	for _, tok := range s.Hidden() {
		if len(tok) < 32 || len(tok) > 44 {
			continue
		}
		key, ok := decodeBase58(tok)
		if !ok || len(key) != 32 {
			continue
		}
		return Match{Rule: r.Name(), Chain: "sol", Detail: "pubkey=32"}, true
	}
	return Match{}, false
}

func decodeBase58(s string) ([]byte, bool) {
	n := new(big.Int)
	radix := big.NewInt(58)
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(base58Alphabet, s[i])
		if v < 0 {
			return nil, false
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(v)))
	}
	zeros := 0
	for zeros < len(s) && s[zeros] == '1' {
		zeros++
	}
	return append(make([]byte, zeros), n.Bytes()...), true
}

// =============================================================================
// EVM addresses (EIP-55)
// =============================================================================

// EVMRule fires on 0x-prefixed 20-byte hex addresses. Mixed-case input is
// checked against its EIP-55 checksum; a failed checksum is still sensitive
// and is annotated because it usually means the text was edited.
type EVMRule struct{}

// Name implements Rule.
func (EVMRule) Name() string { return "evm" }

// Match implements Rule.
func (r EVMRule) Match(s Sample) (Match, bool) {
	for _, tok := range s.Candidates() {
		if len(tok) != 42 || (tok[:2] != "0x" && tok[:2] != "0X") {
			continue
		}
		addr := tok[2:]
		if _, err := hex.DecodeString(addr); err != nil {
			continue
		}
		return Match{Rule: r.Name(), Chain: "evm", Detail: "checksum=" + eip55State(addr)}, true
	}
	return Match{}, false
}

// eip55State returns "none" for single-case addresses, otherwise "valid" or
// "invalid" according to the EIP-55 mixed-case checksum.
func eip55State(addr string) string {
	lower := strings.ToLower(addr)
	if addr == lower || addr == strings.ToUpper(addr) {
		return "none"
	}
	if addr == eip55Checksum(lower) {
		return "valid"
	}
	return "invalid"
}

// eip55Checksum applies the EIP-55 casing to a lowercase 40-hex address.
func eip55Checksum(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && sum[i] >= '8' {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}
