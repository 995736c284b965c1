// Package client предоставляет типизированный HTTP-клиент API реестра FlySure.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/flysure/internal/wallet"
	"github.com/mmeshcher/flysure/pkg/api"
)

const (
	defaultTimeout = 10 * time.Second
	maxAttempts    = 3
	retryDelay     = 200 * time.Millisecond
)

// APIError описывает ответ сервера со статусом не 2xx. Reason содержит
// причину отказа реестра, например "Policy is not active".
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flysure api: status %d: %s", e.StatusCode, e.Reason)
}

// IsStatus сообщает, что err является ответом сервера с указанным статусом.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client инкапсулирует HTTP-взаимодействие с реестром. Адрес вызывающего
// хранится в cookie после Connect.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для сервера по указанному адресу. Схема http://
// подставляется, если не указана.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
	}
}

// Connect подписывает ключом выданное сервером сообщение, после чего
// запросы выполняются от имени адреса ключа.
func (c *Client) Connect(ctx context.Context, key *ecdsa.PrivateKey) (api.ConnectResponse, error) {
	var ch api.ChallengeResponse
	address := wallet.AddressOf(key).String()
	if err := c.do(ctx, http.MethodPost, api.RouteWalletChallenge, api.ChallengeRequest{Address: address}, &ch); err != nil {
		return api.ConnectResponse{}, err
	}

	sig, err := wallet.Sign(key, ch.Message)
	if err != nil {
		return api.ConnectResponse{}, err
	}

	var resp api.ConnectResponse
	req := api.ConnectRequest{Address: address, Nonce: ch.Nonce, Signature: sig}
	err = c.do(ctx, http.MethodPost, api.RouteWalletConnect, req, &resp)
	return resp, err
}

// LedgerInfo возвращает роли и счёт реестра.
func (c *Client) LedgerInfo(ctx context.Context) (api.LedgerInfo, error) {
	var resp api.LedgerInfo
	err := c.do(ctx, http.MethodGet, api.RouteLedger, nil, &resp)
	return resp, err
}

// Solvency возвращает покрытие обязательств реестра.
func (c *Client) Solvency(ctx context.Context) (api.Solvency, error) {
	var resp api.Solvency
	err := c.do(ctx, http.MethodGet, api.RouteSolvency, nil, &resp)
	return resp, err
}

// GetPolicy возвращает полис по идентификатору.
func (c *Client) GetPolicy(ctx context.Context, id int64) (api.Policy, error) {
	var resp api.Policy
	err := c.do(ctx, http.MethodGet, api.PolicyPath(id, ""), nil, &resp)
	return resp, err
}

// Flight возвращает покрытие рейса. Если holder не пуст, ответ содержит
// признак полиса этого держателя.
func (c *Client) Flight(ctx context.Context, flightID, holder string) (api.Flight, error) {
	endpoint := api.FlightPath(flightID)
	if holder != "" {
		endpoint += "?" + url.Values{api.QueryHolder: {holder}}.Encode()
	}
	var resp api.Flight
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// HolderPolicies возвращает идентификаторы полисов держателя.
func (c *Client) HolderPolicies(ctx context.Context, holder string) (api.HolderPolicies, error) {
	var resp api.HolderPolicies
	err := c.do(ctx, http.MethodGet, api.HolderPoliciesPath(holder), nil, &resp)
	return resp, err
}

// CreatePolicy создаёт полис от имени подключённого адреса.
func (c *Client) CreatePolicy(ctx context.Context, req api.CreatePolicyRequest) (int64, error) {
	var resp api.CreatePolicyResponse
	err := c.do(ctx, http.MethodPost, api.RoutePolicies, req, &resp)
	return resp.PolicyID, err
}

// ListPolicies возвращает полисы подключённого адреса.
func (c *Client) ListPolicies(ctx context.Context) ([]api.Policy, error) {
	var resp []api.Policy
	err := c.do(ctx, http.MethodGet, api.RoutePolicies, nil, &resp)
	return resp, err
}

// Claim запрашивает выплату по полису.
func (c *Client) Claim(ctx context.Context, id int64) (api.Policy, error) {
	var resp api.Policy
	err := c.do(ctx, http.MethodPost, api.PolicyPath(id, "claim"), nil, &resp)
	return resp, err
}

// Expire закрывает полис без выплаты.
func (c *Client) Expire(ctx context.Context, id int64) (api.Policy, error) {
	var resp api.Policy
	err := c.do(ctx, http.MethodPost, api.PolicyPath(id, "expire"), nil, &resp)
	return resp, err
}

// ReportFlightStatus отправляет отчёт оракула о рейсе полиса.
func (c *Client) ReportFlightStatus(ctx context.Context, id int64, status string, delayMinutes int64) (api.Policy, error) {
	var resp api.Policy
	req := api.FlightStatusRequest{Status: status, DelayMinutes: delayMinutes}
	err := c.do(ctx, http.MethodPost, api.PolicyPath(id, "flight-status"), req, &resp)
	return resp, err
}

// SetOracle заменяет адрес оракула.
func (c *Client) SetOracle(ctx context.Context, address string) (api.LedgerInfo, error) {
	var resp api.LedgerInfo
	err := c.do(ctx, http.MethodPut, api.RouteAdminOracle, api.AddressRequest{Address: address}, &resp)
	return resp, err
}

// TransferOwnership передаёт роль владельца.
func (c *Client) TransferOwnership(ctx context.Context, address string) (api.LedgerInfo, error) {
	var resp api.LedgerInfo
	err := c.do(ctx, http.MethodPut, api.RouteAdminOwner, api.AddressRequest{Address: address}, &resp)
	return resp, err
}

// Balance возвращает остаток счёта.
func (c *Client) Balance(ctx context.Context, address string) (api.Balance, error) {
	var resp api.Balance
	err := c.do(ctx, http.MethodGet, api.TokenBalancePath(address), nil, &resp)
	return resp, err
}

// Allowance возвращает разрешение owner на списание в пользу spender.
func (c *Client) Allowance(ctx context.Context, owner, spender string) (api.Allowance, error) {
	var resp api.Allowance
	err := c.do(ctx, http.MethodGet, api.TokenAllowancePath(owner, spender), nil, &resp)
	return resp, err
}

// Approve разрешает spender списывать средства подключённого адреса.
func (c *Client) Approve(ctx context.Context, spender, amount string) (api.Allowance, error) {
	var resp api.Allowance
	err := c.do(ctx, http.MethodPost, api.RouteTokenApprove, api.ApproveRequest{Spender: spender, Amount: amount}, &resp)
	return resp, err
}

// Transfer переводит средства подключённого адреса.
func (c *Client) Transfer(ctx context.Context, to, amount string) (api.Balance, error) {
	var resp api.Balance
	err := c.do(ctx, http.MethodPost, api.RouteTokenTransfer, api.TransferRequest{To: to, Amount: amount}, &resp)
	return resp, err
}

// Faucet зачисляет тестовые средства подключённому адресу.
func (c *Client) Faucet(ctx context.Context, amount string) (api.Balance, error) {
	var resp api.Balance
	err := c.do(ctx, http.MethodPost, api.RouteTokenFaucet, api.FaucetRequest{Amount: amount}, &resp)
	return resp, err
}

// do выполняет запрос. Изменяющие запросы получают Idempotency-Key и
// повторяются с тем же ключом при сетевой ошибке или ответах 502 и 504.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var key string
	if method != http.MethodGet {
		key = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		retry, err := c.attempt(ctx, method, endpoint, payload, key, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, key string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(api.HeaderIdempotencyKey, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Reason: strings.TrimSpace(string(b))}
		retry := resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout
		return retry, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}
