package rails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/m4xw311/typestake/errors"
)

// JSON-RPC methods exposed by the rails provider.
const (
	methodFetchPermissions = "coinbase_fetchPermissions"
	methodApprovePerm      = "coinbase_approveSpendPermission"
	methodSpendPerm        = "coinbase_spendPermission"
	methodTransfer         = "coinbase_walletTransfer"
)

// Provider-side error code for a spend without a live approval.
const codeNoPermission = -32010

// Client is the JSON-RPC Provider implementation.
type Client struct {
	endpoint string
	opts     Options
	http     *http.Client
}

// NewClient builds a rails client for the configured provider endpoint.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: opts.Endpoint,
		opts:     opts,
		http:     &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) FetchPermissions(ctx context.Context, req FetchRequest) ([]Permission, error) {
	raw, err := c.call(ctx, methodFetchPermissions, req)
	if err != nil {
		return nil, err
	}
	var result struct {
		Permissions []Permission `json:"permissions"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.WrapKind(err, errors.KindUpstream, "decoding permissions result")
	}
	return result.Permissions, nil
}

func (c *Client) Authorize(ctx context.Context, perm Permission) (string, error) {
	raw, err := c.call(ctx, methodApprovePerm, map[string]interface{}{
		"walletId":        c.opts.WalletID,
		"networkId":       c.opts.NetworkID,
		"spendPermission": perm.SpendPermission,
		"signature":       perm.Signature,
	})
	if err != nil {
		return "", err
	}
	return decodeTxRef(raw)
}

func (c *Client) Spend(ctx context.Context, perm Permission, amountWei string) (string, error) {
	raw, err := c.call(ctx, methodSpendPerm, map[string]interface{}{
		"walletId":        c.opts.WalletID,
		"networkId":       c.opts.NetworkID,
		"spendPermission": perm.SpendPermission,
		"value":           amountWei,
	})
	if err != nil {
		return "", err
	}
	return decodeTxRef(raw)
}

func (c *Client) Payout(ctx context.Context, to string, amountWei string) (string, error) {
	raw, err := c.call(ctx, methodTransfer, map[string]interface{}{
		"walletId":  c.opts.WalletID,
		"networkId": c.opts.NetworkID,
		"assetId":   "eth",
		"amountWei": amountWei,
		"to":        to,
	})
	if err != nil {
		return "", err
	}
	return decodeTxRef(raw)
}

// call performs one JSON-RPC round trip. Transfer-shaped methods block server
// side until confirmation, so the request inherits both ctx and the client
// timeout.
func (c *Client) call(ctx context.Context, method string, param interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  []interface{}{param},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s request", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "building %s request", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindUpstream, "rails provider unreachable (%s)", method)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindUpstream, "reading %s response", method)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithKind(errors.KindUpstream,
			"rails provider returned %d for %s: %s", resp.StatusCode, method, truncate(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, errors.WrapKind(err, errors.KindUpstream, "decoding %s response", method)
	}
	if rpcResp.Error != nil {
		return nil, classifyRPCError(method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// classifyRPCError separates "no usable approval" (caller should authorize
// and retry) from a rejected movement (fatal for this attempt).
func classifyRPCError(method string, rpcErr *rpcError) error {
	if rpcErr.Code == codeNoPermission ||
		strings.Contains(strings.ToLower(rpcErr.Message), "permission not approved") {
		return fmt.Errorf("%s: %s: %w", method, rpcErr.Message, ErrNoPermission)
	}
	switch method {
	case methodSpendPerm, methodTransfer, methodApprovePerm:
		return errors.WithKind(errors.KindTransfer, "%s rejected: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
	default:
		return errors.WithKind(errors.KindUpstream, "%s failed: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
	}
}

func decodeTxRef(raw json.RawMessage) (string, error) {
	var result struct {
		TransactionHash string `json:"transactionHash"`
		TransactionLink string `json:"transactionLink"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", errors.WrapKind(err, errors.KindUpstream, "decoding transaction result")
	}
	if result.TransactionLink != "" {
		return result.TransactionLink, nil
	}
	if result.TransactionHash == "" {
		return "", errors.WithKind(errors.KindUpstream, "transaction result missing hash")
	}
	return result.TransactionHash, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

var _ Provider = (*Client)(nil)
