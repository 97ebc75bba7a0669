package app_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"GiftCardPay/internal/app"
	"GiftCardPay/internal/chain"
	"GiftCardPay/internal/config"
)

func TestCheckAddresses(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := &config.Config{Addresses: map[string]string{
		"ETH": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"BTC": "not-an-address",
	}}
	codes := chain.NewRegistry(log, cfg.Explorers).Codes()
	assert.ElementsMatch(t, config.SupportedCryptos, codes)

	bad := app.CheckAddresses(log, cfg, codes)

	assert.Equal(t, len(config.SupportedCryptos)-1, bad)
	assert.Contains(t, buf.String(), "receiving address looks invalid")
	assert.Contains(t, buf.String(), "crypto=BTC")
	assert.NotContains(t, buf.String(), "crypto=ETH")
}

func TestCheckAddresses_OnlyRegisteredCodes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	reg := chain.NewEmptyRegistry()
	reg.Register("SOL", nil)

	bad := app.CheckAddresses(log, &config.Config{}, reg.Codes())

	assert.Equal(t, 1, bad)
	assert.Contains(t, buf.String(), "crypto=SOL")
	assert.NotContains(t, buf.String(), "crypto=BTC")
}
