package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// CreditGateway is the ledger-side primitive the pipeline depends on.
// Implementations must honor the reference as an idempotency key: re-crediting
// the same reference must not double-pay.
type CreditGateway interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) error
}

// Client talks to the ledger backend's wallet-credit endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type creditRequest struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

func (c *Client) Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("wallet base url is empty")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("wallet credit user id is empty")
	}
	if amount.IsNegative() {
		return fmt.Errorf("wallet credit amount is negative: %s", amount.String())
	}

	body, err := json.Marshal(creditRequest{
		UserID:    userID,
		Amount:    amount.String(),
		Reference: strings.TrimSpace(reference),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/wallets/credit", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if ref := strings.TrimSpace(reference); ref != "" {
		req.Header.Set("Idempotency-Key", ref)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wallet credit http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
