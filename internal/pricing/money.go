package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnparsableDenomination = errors.New("unparsable denomination")

const (
	USD = "USD"
	CAD = "CAD"
	AUD = "AUD"
	EUR = "EUR"
	RUB = "RUB"
	TRY = "TRY"
	GBP = "GBP"
)

// Money is an amount in a fiat currency identified by its ISO code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

var symbols = map[string]string{
	USD: "$",
	CAD: "C$",
	AUD: "A$",
	EUR: "€",
	RUB: "₽",
	TRY: "₺",
	GBP: "£",
}

// Match order matters: "C$" and "A$" contain "$".
var symbolOrder = []struct {
	symbol   string
	currency string
}{
	{"C$", CAD},
	{"A$", AUD},
	{"$", USD},
	{"€", EUR},
	{"₽", RUB},
	{"₺", TRY},
	{"£", GBP},
}

// Illustrative fixed rates, not market data.
var usdRates = map[string]decimal.Decimal{
	USD: decimal.NewFromInt(1),
	CAD: decimal.NewFromInt(1),
	AUD: decimal.NewFromInt(1),
	EUR: decimal.RequireFromString("1.1"),
	RUB: decimal.RequireFromString("0.01"),
	TRY: decimal.RequireFromString("0.03"),
	GBP: decimal.RequireFromString("1.28"),
}

var cryptoPrecision = map[string]int32{
	"BTC":  8,
	"ETH":  6,
	"LTC":  6,
	"BNB":  6,
	"SOL":  6,
	"BCH":  6,
	"XRP":  4,
	"ADA":  4,
	"DOGE": 4,
	"TRX":  4,
	"TON":  4,
	"USDT": 2,
	"USDC": 2,
}

var hundred = decimal.NewFromInt(100)

// IsFiat reports whether the ISO code has a symbol and a USD rate.
func IsFiat(currency string) bool {
	_, ok := usdRates[currency]
	return ok
}

func Symbol(currency string) string {
	if s, ok := symbols[currency]; ok {
		return s
	}
	return currency
}

// ParseDenomination reads display strings such as "$100", "€50", "C$25", "A100" or "$100 ($55)".
// On failure it returns 100 USD together with ErrUnparsableDenomination so checkout can proceed.
func ParseDenomination(s string) (Money, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	if i := strings.Index(cleaned, "("); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.TrimSpace(cleaned)

	currency := ""
	for _, sym := range symbolOrder {
		if strings.Contains(cleaned, sym.symbol) {
			cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, sym.symbol, ""))
			currency = sym.currency
			break
		}
	}
	if currency == "" {
		switch {
		case len(cleaned) > 1 && cleaned[0] == 'C' && isDigits(cleaned[1:]):
			cleaned, currency = cleaned[1:], CAD
		case len(cleaned) > 1 && cleaned[0] == 'A' && isDigits(cleaned[1:]):
			cleaned, currency = cleaned[1:], AUD
		default:
			currency = USD
		}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return Money{Amount: decimal.NewFromInt(100), Currency: USD},
			fmt.Errorf("%w: %q", ErrUnparsableDenomination, s)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatDenomination renders an amount with its currency symbol; whole amounts drop the decimals.
func FormatDenomination(m Money) string {
	return place(m.Currency, formatNumber(m.Amount, m.Amount.IsInteger()))
}

// FormatWithDiscount renders "$100 ($55)" style strings. rate is a fraction, 0.45 for 45%.
func FormatWithDiscount(m Money, rate decimal.Decimal) string {
	discounted := Discount(m.Amount, rate)
	whole := m.Amount.IsInteger()
	return fmt.Sprintf("%s (%s)",
		place(m.Currency, formatNumber(m.Amount, whole)),
		place(m.Currency, formatNumber(discounted, whole && discounted.IsInteger())),
	)
}

func place(currency, number string) string {
	if currency == EUR {
		return number + Symbol(currency)
	}
	return Symbol(currency) + number
}

func formatNumber(d decimal.Decimal, whole bool) string {
	if whole {
		return d.Truncate(0).String()
	}
	return d.StringFixed(2)
}

// RateFromPercent converts 45 into 0.45.
func RateFromPercent(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// Discount applies a fractional discount rate to an amount.
func Discount(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(rate))
}

// ToUSD converts a fiat amount to USD rounded to cents.
func ToUSD(m Money) (decimal.Decimal, error) {
	rate, ok := usdRates[m.Currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no usd rate for %s", m.Currency)
	}
	return m.Amount.Mul(rate).Round(2), nil
}

// Precision returns the number of decimals a crypto amount is quoted with.
func Precision(code string) int32 {
	if p, ok := cryptoPrecision[strings.ToUpper(code)]; ok {
		return p
	}
	return 2
}

// CryptoAmount converts a USD amount into units of the crypto at the given unit price.
func CryptoAmount(code string, usd, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if !unitPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("unit price for %s must be positive", code)
	}
	return usd.Div(unitPrice).Round(Precision(code)), nil
}
