package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client performs single-shot GET requests against explorer APIs.
type Client struct {
	client *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{client: &http.Client{Timeout: timeout}}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("explorer http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("explorer http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// flexInt accepts integers encoded as JSON numbers or strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil {
			return fmt.Errorf("flexInt %s: %w", s, err)
		}
		v = d.IntPart()
	}
	*f = flexInt(v)
	return nil
}

// flexAmount accepts an amount encoded as a number or string and ignores any other shape,
// such as XRP issued-currency objects.
type flexAmount struct {
	Value decimal.Decimal
	Valid bool
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '{' || b[0] == '[' || string(b) == "null" {
		*a = flexAmount{}
		return nil
	}
	d, err := decimal.NewFromString(strings.Trim(string(b), `"`))
	if err != nil {
		*a = flexAmount{}
		return nil
	}
	*a = flexAmount{Value: d, Valid: true}
	return nil
}

// fromUnits converts an integer amount of base units into whole coins.
func fromUnits(raw decimal.Decimal, decimals int32) decimal.Decimal {
	return raw.Shift(-decimals)
}
