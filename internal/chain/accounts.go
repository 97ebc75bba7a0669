package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type solscan struct {
	c       *Client
	baseURL string
}

type solscanResponse struct {
	Data []struct {
		TxHash     string          `json:"txHash"`
		Status     string          `json:"status"`
		Type       string          `json:"type"`
		DstAddress string          `json:"dstAddress"`
		Lamport    decimal.Decimal `json:"lamport"`
	} `json:"data"`
}

func (s *solscan) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := strings.TrimRight(s.baseURL, "/") + "/account/transactions?account=" + url.QueryEscape(address)
	var resp solscanResponse
	if err := s.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, tx := range resp.Data {
		if tx.Status != "Success" || tx.Type != "SOL_TRANSFER" {
			continue
		}
		out = append(out, Transfer{
			TxID:          tx.TxHash,
			To:            tx.DstAddress,
			Amount:        fromUnits(tx.Lamport, 9),
			Confirmations: 1,
		})
	}
	return out, nil
}

type xrpscan struct {
	c       *Client
	baseURL string
}

type xrpscanTx struct {
	Hash        string     `json:"hash"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Destination string     `json:"Destination"`
	Amount      flexAmount `json:"Amount"`
}

func (x *xrpscan) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := fmt.Sprintf("%s/api/v1/account/%s/transactions", strings.TrimRight(x.baseURL, "/"), url.PathEscape(address))
	var txs []xrpscanTx
	if err := x.c.getJSON(ctx, endpoint, nil, &txs); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, tx := range txs {
		// Issued-currency payments carry an object amount and are not XRP.
		if tx.Type != "Payment" || tx.Status != "tesSUCCESS" || !tx.Amount.Valid {
			continue
		}
		out = append(out, Transfer{
			TxID:          tx.Hash,
			To:            tx.Destination,
			Amount:        fromUnits(tx.Amount.Value, 6),
			Confirmations: 1,
		})
	}
	return out, nil
}

type cardanoscan struct {
	c       *Client
	baseURL string
}

type cardanoscanResponse struct {
	Transactions []struct {
		Hash          string   `json:"hash"`
		Confirmations *flexInt `json:"confirmations"`
		Outputs       []struct {
			Address string          `json:"address"`
			Value   decimal.Decimal `json:"value"`
		} `json:"outputs"`
	} `json:"transactions"`
}

func (c *cardanoscan) transfers(ctx context.Context, address string) ([]Transfer, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + "/api/transaction/" + url.PathEscape(address)
	var resp cardanoscanResponse
	if err := c.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, tx := range resp.Transactions {
		confs := int64(1)
		if tx.Confirmations != nil {
			confs = int64(*tx.Confirmations)
		}
		for _, o := range tx.Outputs {
			out = append(out, Transfer{
				TxID:          tx.Hash,
				To:            o.Address,
				Amount:        fromUnits(o.Value, 6),
				Confirmations: confs,
			})
		}
	}
	return out, nil
}

type tronscan struct {
	c       *Client
	baseURL string
}

type tronscanResponse struct {
	Data []struct {
		Hash      string          `json:"hash"`
		ToAddress string          `json:"toAddress"`
		Amount    decimal.Decimal `json:"amount"`
		Confirmed bool            `json:"confirmed"`
	} `json:"data"`
}

func (t *tronscan) transfers(ctx context.Context, address string) ([]Transfer, error) {
	values := url.Values{}
	values.Set("address", address)
	values.Set("direction", "in")
	endpoint := strings.TrimRight(t.baseURL, "/") + "/api/transaction?" + values.Encode()

	var resp tronscanResponse
	if err := t.c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, tx := range resp.Data {
		var confs int64
		if tx.Confirmed {
			confs = 1
		}
		out = append(out, Transfer{
			TxID:          tx.Hash,
			To:            tx.ToAddress,
			Amount:        fromUnits(tx.Amount, 6),
			Confirmations: confs,
		})
	}
	return out, nil
}

type toncenter struct {
	c       *Client
	baseURL string
	apiKey  string
}

type toncenterResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result []struct {
		TransactionID struct {
			Hash string `json:"hash"`
		} `json:"transaction_id"`
		InMsg struct {
			Destination string          `json:"destination"`
			Value       decimal.Decimal `json:"value"`
		} `json:"in_msg"`
	} `json:"result"`
}

func (t *toncenter) transfers(ctx context.Context, address string) ([]Transfer, error) {
	values := url.Values{}
	values.Set("address", address)
	values.Set("limit", "10")
	endpoint := strings.TrimRight(t.baseURL, "/") + "/api/v2/getTransactions?" + values.Encode()

	var header http.Header
	if t.apiKey != "" {
		header = http.Header{"X-API-Key": []string{t.apiKey}}
	}

	var resp toncenterResponse
	if err := t.c.getJSON(ctx, endpoint, header, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("toncenter: %s", resp.Error)
	}

	out := make([]Transfer, 0, len(resp.Result))
	for _, tx := range resp.Result {
		// Listed transactions are already final.
		out = append(out, Transfer{
			TxID:          tx.TransactionID.Hash,
			To:            tx.InMsg.Destination,
			Amount:        fromUnits(tx.InMsg.Value, 9),
			Confirmations: 1,
		})
	}
	return out, nil
}
