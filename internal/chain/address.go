package chain

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidAddress = errors.New("invalid address")

	evmPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	xrpPattern      = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)
	tonRawPattern   = regexp.MustCompile(`^-?[0-9]+:[0-9a-fA-F]{64}$`)
	cashAddrPattern = regexp.MustCompile(`^[qp][02-9ac-hj-np-z]{41}$`)
)

// base58check version bytes accepted per chain.
var legacyVersions = map[string][]byte{
	"BTC":  {0x00, 0x05},
	"BCH":  {0x00, 0x05},
	"LTC":  {0x30, 0x32, 0x05},
	"DOGE": {0x1e, 0x16},
	"TRX":  {0x41},
}

var segwitHRP = map[string]string{
	"BTC": "bc",
	"LTC": "ltc",
}

// ValidateAddress checks that addr is a well-formed receiving address for code.
func ValidateAddress(code, addr string) error {
	code = strings.ToUpper(code)
	if addr == "" {
		return fmt.Errorf("%w: empty %s address", ErrInvalidAddress, code)
	}

	var err error
	switch code {
	case "ETH", "USDT", "USDC", "BNB":
		err = validateEVM(addr)
	case "BTC", "LTC":
		if strings.HasPrefix(strings.ToLower(addr), segwitHRP[code]+"1") {
			err = validateSegwit(segwitHRP[code], addr)
		} else {
			err = validateBase58Check(addr, legacyVersions[code])
		}
	case "DOGE", "TRX":
		err = validateBase58Check(addr, legacyVersions[code])
	case "BCH":
		err = validateBCH(addr)
	case "SOL":
		if b := base58.Decode(addr); len(b) != 32 {
			err = fmt.Errorf("decoded length %d, want 32", len(b))
		}
	case "XRP":
		if !xrpPattern.MatchString(addr) {
			err = errors.New("not a classic address")
		}
	case "ADA":
		err = validateCardano(addr)
	case "TON":
		err = validateTON(addr)
	default:
		return fmt.Errorf("%w: unsupported crypto %s", ErrInvalidAddress, code)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidAddress, code, addr, err)
	}
	return nil
}

// validateEVM accepts all-lower or all-upper hex, and mixed case only with a valid EIP-55 checksum.
func validateEVM(addr string) error {
	if !evmPattern.MatchString(addr) {
		return errors.New("not a 20-byte hex address")
	}
	body := addr[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if checksumAddress(addr) != addr {
		return errors.New("bad EIP-55 checksum")
	}
	return nil
}

func checksumAddress(addr string) string {
	lower := strings.ToLower(addr[2:])
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}

func validateSegwit(hrp, addr string) error {
	gotHRP, data, _, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return err
	}
	if gotHRP != hrp {
		return fmt.Errorf("hrp %q, want %q", gotHRP, hrp)
	}
	if len(data) < 1 {
		return errors.New("missing witness version")
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return err
	}
	if len(program) < 2 || len(program) > 40 {
		return fmt.Errorf("witness program length %d", len(program))
	}
	return nil
}

func validateBase58Check(addr string, versions []byte) error {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return err
	}
	if len(payload) != 20 {
		return fmt.Errorf("payload length %d, want 20", len(payload))
	}
	for _, v := range versions {
		if v == version {
			return nil
		}
	}
	return fmt.Errorf("unexpected version byte 0x%02x", version)
}

func validateBCH(addr string) error {
	lower := strings.ToLower(addr)
	if strings.HasPrefix(lower, "bitcoincash:") || cashAddrPattern.MatchString(lower) {
		if !cashAddrPattern.MatchString(strings.TrimPrefix(lower, "bitcoincash:")) {
			return errors.New("malformed cashaddr")
		}
		return nil
	}
	return validateBase58Check(addr, legacyVersions["BCH"])
}

func validateCardano(addr string) error {
	// Shelley addresses exceed the 90-char bech32 limit.
	hrp, _, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return err
	}
	if hrp != "addr" {
		return fmt.Errorf("hrp %q, want addr", hrp)
	}
	return nil
}

func validateTON(addr string) error {
	if tonRawPattern.MatchString(addr) {
		return nil
	}
	if len(addr) != 48 {
		return fmt.Errorf("length %d, want 48", len(addr))
	}
	b, err := base64.URLEncoding.DecodeString(strings.NewReplacer("+", "-", "/", "_").Replace(addr))
	if err != nil {
		return err
	}
	if len(b) != 36 {
		return fmt.Errorf("decoded length %d, want 36", len(b))
	}
	return nil
}
