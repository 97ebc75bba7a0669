package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// bchDetailLimit caps per-transaction lookups on a single BCH check.
const bchDetailLimit = 10

type blockchainInfo struct {
	c       *Client
	baseURL string
}

type rawAddrResponse struct {
	Txs []struct {
		Hash          string   `json:"hash"`
		Confirmations *flexInt `json:"confirmations"`
		BlockHeight   *int64   `json:"block_height"`
		Out           []struct {
			Addr  string          `json:"addr"`
			Value decimal.Decimal `json:"value"`
		} `json:"out"`
	} `json:"txs"`
}

func (b *blockchainInfo) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := strings.TrimRight(b.baseURL, "/") + "/rawaddr/" + url.PathEscape(address)
	var resp rawAddrResponse
	if err := b.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, tx := range resp.Txs {
		var confs int64
		switch {
		case tx.Confirmations != nil:
			confs = int64(*tx.Confirmations)
		case tx.BlockHeight != nil && *tx.BlockHeight > 0:
			confs = 1
		}
		for _, o := range tx.Out {
			out = append(out, Transfer{
				TxID:          tx.Hash,
				To:            o.Addr,
				Amount:        fromUnits(o.Value, 8),
				Confirmations: confs,
			})
		}
	}
	return out, nil
}

type blockcypher struct {
	c       *Client
	baseURL string
	coin    string
}

type blockcypherTxRef struct {
	TxHash        string          `json:"tx_hash"`
	TxOutputN     int64           `json:"tx_output_n"`
	Value         decimal.Decimal `json:"value"`
	Confirmations int64           `json:"confirmations"`
	Spent         bool            `json:"spent"`
}

type blockcypherAddrResponse struct {
	TxRefs            []blockcypherTxRef `json:"txrefs"`
	UnconfirmedTxRefs []blockcypherTxRef `json:"unconfirmed_txrefs"`
}

func (b *blockcypher) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/main/addrs/%s", strings.TrimRight(b.baseURL, "/"), b.coin, url.PathEscape(address))
	var resp blockcypherAddrResponse
	if err := b.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	refs := append(resp.TxRefs, resp.UnconfirmedTxRefs...)
	var out []Transfer
	for _, ref := range refs {
		// Negative output index marks the address spending, not receiving.
		if ref.Spent || ref.TxOutputN < 0 {
			continue
		}
		out = append(out, Transfer{
			TxID:          ref.TxHash,
			To:            address,
			Amount:        fromUnits(ref.Value, 8),
			Confirmations: ref.Confirmations,
		})
	}
	return out, nil
}

type dogechain struct {
	c       *Client
	baseURL string
}

type dogechainResponse struct {
	Success      int    `json:"success"`
	Error        string `json:"error"`
	Transactions []struct {
		Hash          string          `json:"hash"`
		Value         decimal.Decimal `json:"value"`
		Confirmations flexInt         `json:"confirmations"`
		Direction     string          `json:"direction"`
	} `json:"transactions"`
}

func (d *dogechain) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := strings.TrimRight(d.baseURL, "/") + "/api/v1/address/transactions/" + url.PathEscape(address)
	var resp dogechainResponse
	if err := d.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Success != 1 {
		return nil, fmt.Errorf("dogechain: %s", resp.Error)
	}

	var out []Transfer
	for _, tx := range resp.Transactions {
		if tx.Direction != "incoming" {
			continue
		}
		out = append(out, Transfer{
			TxID:          tx.Hash,
			To:            address,
			Amount:        tx.Value,
			Confirmations: int64(tx.Confirmations),
		})
	}
	return out, nil
}

type bitcoinCom struct {
	c       *Client
	baseURL string
}

type bchAddressResponse struct {
	Transactions []string `json:"transactions"`
}

type bchTxResponse struct {
	TxID          string  `json:"txid"`
	Confirmations flexInt `json:"confirmations"`
	Vout          []struct {
		Value        decimal.Decimal `json:"value"`
		ScriptPubKey struct {
			Addresses []string `json:"addresses"`
		} `json:"scriptPubKey"`
	} `json:"vout"`
}

func (b *bitcoinCom) transfers(ctx context.Context, address string) ([]Transfer, error) {
	base := strings.TrimRight(b.baseURL, "/")
	var addr bchAddressResponse
	if err := b.c.getJSON(ctx, base+"/v2/address/details/"+url.PathEscape(address), nil, &addr); err != nil {
		return nil, err
	}

	txids := addr.Transactions
	if len(txids) > bchDetailLimit {
		txids = txids[:bchDetailLimit]
	}

	var (
		out  []Transfer
		errs []error
	)
	for _, txid := range txids {
		var tx bchTxResponse
		if err := b.c.getJSON(ctx, base+"/v2/transaction/details/"+url.PathEscape(txid), nil, &tx); err != nil {
			errs = append(errs, fmt.Errorf("tx %s: %w", txid, err))
			continue
		}
		for _, v := range tx.Vout {
			if !containsCashAddr(v.ScriptPubKey.Addresses, address) {
				continue
			}
			out = append(out, Transfer{
				TxID:          txid,
				To:            address,
				Amount:        v.Value,
				Confirmations: int64(tx.Confirmations),
			})
		}
	}
	// Only fail when every detail lookup failed; partial results still count.
	if len(out) == 0 && len(errs) > 0 && len(errs) == len(txids) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func containsCashAddr(addrs []string, address string) bool {
	want := strings.TrimPrefix(address, "bitcoincash:")
	for _, a := range addrs {
		if strings.TrimPrefix(a, "bitcoincash:") == want {
			return true
		}
	}
	return false
}
