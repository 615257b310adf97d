package rails

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/typestake/errors"
)

type rpcHandler func(method string, params []json.RawMessage) (interface{}, *rpcError)

func newRailsServer(t *testing.T, handle rpcHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string            `json:"jsonrpc"`
			ID      string            `json:"id"`
			Method  string            `json:"method"`
			Params  []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testPermission() Permission {
	return Permission{
		SpendPermission: SpendPermission{
			Account:   "0x0D1400D75C5Ba4C8168E86A3e40db8A8510B33d3",
			Spender:   "0xB9Cf11e1dd8547a8f03Ac922E894938F666CD935",
			Token:     "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE",
			Allowance: "1000000000000000000",
			Period:    "86400",
			Start:     "0",
			End:       "281474976710655",
			Salt:      "0",
			ExtraData: "0x",
		},
		Signature: "0xsig",
	}
}

func TestFetchPermissions(t *testing.T) {
	srv := newRailsServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "coinbase_fetchPermissions", method)
		require.Len(t, params, 1)

		var req FetchRequest
		require.NoError(t, json.Unmarshal(params[0], &req))
		assert.Equal(t, "0x14a34", req.ChainID)

		return map[string]interface{}{"permissions": []Permission{testPermission()}}, nil
	})
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL})
	perms, err := c.FetchPermissions(context.Background(), FetchRequest{
		ChainID:     "0x14a34",
		Account:     "0x0D1400D75C5Ba4C8168E86A3e40db8A8510B33d3",
		Spender:     "0xB9Cf11e1dd8547a8f03Ac922E894938F666CD935",
		PageOptions: PageOptions{PageSize: 10},
	})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "0xsig", perms[0].Signature)
}

func TestFetchPermissionsEmptyIsNotAnError(t *testing.T) {
	srv := newRailsServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return map[string]interface{}{"permissions": []Permission{}}, nil
	})
	defer srv.Close()

	perms, err := NewClient(Options{Endpoint: srv.URL}).
		FetchPermissions(context.Background(), FetchRequest{})
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestSpendReturnsTxRef(t *testing.T) {
	srv := newRailsServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "coinbase_spendPermission", method)
		return map[string]string{"transactionHash": "0xabc"}, nil
	})
	defer srv.Close()

	tx, err := NewClient(Options{Endpoint: srv.URL}).
		Spend(context.Background(), testPermission(), "1000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", tx)
}

func TestSpendWithoutApproval(t *testing.T) {
	srv := newRailsServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32010, Message: "spend permission not approved"}
	})
	defer srv.Close()

	_, err := NewClient(Options{Endpoint: srv.URL}).
		Spend(context.Background(), testPermission(), "1")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNoPermission))
}

func TestSpendRejected(t *testing.T) {
	srv := newRailsServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "allowance exceeded"}
	})
	defer srv.Close()

	_, err := NewClient(Options{Endpoint: srv.URL}).
		Spend(context.Background(), testPermission(), "1")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransfer))
	assert.False(t, stderrors.Is(err, ErrNoPermission))
}

func TestProviderUnreachable(t *testing.T) {
	srv := newRailsServer(t, func(string, []json.RawMessage) (interface{}, *rpcError) {
		return nil, nil
	})
	srv.Close() // refuse all connections

	_, err := NewClient(Options{Endpoint: srv.URL}).
		FetchPermissions(context.Background(), FetchRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
}

func TestPayout(t *testing.T) {
	srv := newRailsServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "coinbase_walletTransfer", method)

		var p map[string]interface{}
		require.NoError(t, json.Unmarshal(params[0], &p))
		assert.Equal(t, "0xf7d4041e751E0b4f6eA72Eb82F2b200D278704A4", p["to"])
		return map[string]string{"transactionLink": "https://sepolia.basescan.org/tx/0xdef"}, nil
	})
	defer srv.Close()

	tx, err := NewClient(Options{Endpoint: srv.URL}).
		Payout(context.Background(), "0xf7d4041e751E0b4f6eA72Eb82F2b200D278704A4", "1000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xdef", tx)
}
