package chain

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"GiftCardPay/internal/config"
	"GiftCardPay/internal/logger"
)

// Transfer is an incoming payment as reported by an explorer, in whole coins.
type Transfer struct {
	TxID          string
	To            string
	Amount        decimal.Decimal
	Confirmations int64
}

type Result struct {
	Found         bool
	TxID          string
	Confirmations int64
}

// Probe looks for an incoming transfer to address worth at least the tolerated share of expected.
// Remote failures are reported as not found.
type Probe interface {
	FindIncoming(ctx context.Context, address string, expected decimal.Decimal) Result
}

type fetcher interface {
	transfers(ctx context.Context, address string) ([]Transfer, error)
}

var tolerance = decimal.RequireFromString("0.99")

// MatchesAmount reports whether received covers expected within the 1% underpayment tolerance.
func MatchesAmount(received, expected decimal.Decimal) bool {
	if !received.IsPositive() || !expected.IsPositive() {
		return false
	}
	return received.GreaterThanOrEqual(expected.Mul(tolerance))
}

type explorerProbe struct {
	log *slog.Logger
	// hex destinations compare case-insensitively.
	hex   bool
	fetch fetcher
}

func (p *explorerProbe) FindIncoming(ctx context.Context, address string, expected decimal.Decimal) Result {
	const op = "chain.Probe.FindIncoming"
	log := p.log.With(slog.String("op", op), slog.String("address", address))

	transfers, err := p.fetch.transfers(ctx, address)
	if err != nil {
		log.Error("explorer query failed", logger.Err(err))
		return Result{}
	}
	for _, t := range transfers {
		if !p.sameAddress(t.To, address) || !MatchesAmount(t.Amount, expected) {
			continue
		}
		log.Debug("matching transfer found",
			slog.String("tx", t.TxID),
			slog.Int64("confirmations", t.Confirmations),
		)
		return Result{Found: true, TxID: t.TxID, Confirmations: t.Confirmations}
	}
	return Result{}
}

func (p *explorerProbe) sameAddress(a, b string) bool {
	if p.hex {
		return strings.EqualFold(a, b)
	}
	return a == b
}

type Registry struct {
	probes map[string]Probe
}

func NewEmptyRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// NewRegistry wires one probe per supported crypto against the configured explorers.
func NewRegistry(log *slog.Logger, cfg config.ExplorersConfig) *Registry {
	c := NewClient(cfg.RequestTimeout)
	r := NewEmptyRegistry()

	add := func(code string, hex bool, f fetcher) {
		r.Register(code, &explorerProbe{
			log:   log.With(slog.String("crypto", code)),
			hex:   hex,
			fetch: f,
		})
	}

	add("BTC", false, &blockchainInfo{c: c, baseURL: cfg.Blockchain})
	add("ETH", true, &etherscan{c: c, baseURL: cfg.Etherscan, apiKey: cfg.EtherscanKey, decimals: 18})
	add("USDT", true, &etherscan{c: c, baseURL: cfg.Etherscan, apiKey: cfg.EtherscanKey, contract: USDTContract, decimals: 6})
	add("USDC", true, &etherscan{c: c, baseURL: cfg.Etherscan, apiKey: cfg.EtherscanKey, contract: USDCContract, decimals: 6})
	add("BNB", true, &etherscan{c: c, baseURL: cfg.Bscscan, apiKey: cfg.BscscanKey, decimals: 18})
	add("LTC", false, &blockcypher{c: c, baseURL: cfg.Blockcypher, coin: "ltc"})
	add("DOGE", false, &dogechain{c: c, baseURL: cfg.Dogechain})
	add("BCH", false, &bitcoinCom{c: c, baseURL: cfg.BitcoinCom})
	add("SOL", false, &solscan{c: c, baseURL: cfg.Solscan})
	add("XRP", false, &xrpscan{c: c, baseURL: cfg.XRPScan})
	add("ADA", false, &cardanoscan{c: c, baseURL: cfg.Cardanoscan})
	add("TRX", false, &tronscan{c: c, baseURL: cfg.Tronscan})
	add("TON", false, &toncenter{c: c, baseURL: cfg.Toncenter, apiKey: cfg.ToncenterKey})
	return r
}

func (r *Registry) Register(code string, p Probe) {
	r.probes[strings.ToUpper(code)] = p
}

func (r *Registry) Probe(code string) (Probe, bool) {
	p, ok := r.probes[strings.ToUpper(code)]
	return p, ok
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.probes))
	for code := range r.probes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
