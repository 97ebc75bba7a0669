package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	USDTContract = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	USDCContract = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

// etherscan serves Etherscan-compatible explorers: native transfers via txlist,
// ERC-20 transfers via tokentx when contract is set.
type etherscan struct {
	c        *Client
	baseURL  string
	apiKey   string
	contract string
	decimals int32
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	Hash          string          `json:"hash"`
	To            string          `json:"to"`
	Value         decimal.Decimal `json:"value"`
	Confirmations flexInt         `json:"confirmations"`
	IsError       string          `json:"isError"`
}

func (e *etherscan) transfers(ctx context.Context, address string) ([]Transfer, error) {
	u, err := url.Parse(strings.TrimRight(e.baseURL, "/") + "/api")
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("module", "account")
	values.Set("address", address)
	values.Set("sort", "desc")
	if e.contract != "" {
		values.Set("action", "tokentx")
		values.Set("contractaddress", e.contract)
	} else {
		values.Set("action", "txlist")
	}
	if e.apiKey != "" {
		values.Set("apikey", e.apiKey)
	}
	u.RawQuery = values.Encode()

	var resp etherscanResponse
	if err := e.c.getJSON(ctx, u.String(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		if strings.HasPrefix(resp.Message, "No transactions found") {
			return nil, nil
		}
		return nil, fmt.Errorf("etherscan: %s: %s", resp.Message, strings.Trim(string(resp.Result), `"`))
	}

	var txs []etherscanTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("etherscan result: %w", err)
	}

	out := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		if tx.IsError == "1" {
			continue
		}
		out = append(out, Transfer{
			TxID:          tx.Hash,
			To:            tx.To,
			Amount:        fromUnits(tx.Value, e.decimals),
			Confirmations: int64(tx.Confirmations),
		})
	}
	return out, nil
}
