// Package rails talks to the wallet rails provider: spend-permission lookup,
// on-chain approval of a signed permission, and the two value movements the
// settlement workflow needs. The provider itself is opaque; this package only
// shapes requests, classifies failures and waits for confirmation.
package rails

import (
	"context"
	"time"

	"github.com/m4xw311/typestake/errors"
)

// SpendPermission mirrors the rails provider's permission tuple. All numeric
// fields travel as decimal strings, matching the provider wire format.
type SpendPermission struct {
	Account   string `json:"account"`
	Spender   string `json:"spender"`
	Token     string `json:"token"`
	Allowance string `json:"allowance"`
	Period    string `json:"period"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Salt      string `json:"salt"`
	ExtraData string `json:"extraData"`
}

// Permission is a spend permission plus the user signature authorizing it.
type Permission struct {
	SpendPermission SpendPermission `json:"spendPermission"`
	Signature       string          `json:"signature"`
}

// PageOptions controls permission-list pagination.
type PageOptions struct {
	PageSize int `json:"pageSize"`
}

// FetchRequest identifies whose permissions to look up.
type FetchRequest struct {
	ChainID     string      `json:"chainId"`
	Account     string      `json:"account"`
	Spender     string      `json:"spender"`
	PageOptions PageOptions `json:"pageOptions"`
}

// ErrNoPermission reports that a spend was attempted without a usable
// on-chain approval. Callers fall back to Authorize and retry; it is distinct
// from a rejected transfer, which is fatal for the attempt.
var ErrNoPermission = errors.WithKind(errors.KindUpstream, "no usable spend permission")

// Provider is the boundary to the wallet rails. Transfer-shaped calls block
// until the movement is confirmed on chain, so every method must honor
// context cancellation; confirmation can take seconds to minutes.
type Provider interface {
	// FetchPermissions returns whatever spend authorizations exist for the
	// (account, spender) pair. An empty result is not an error.
	FetchPermissions(ctx context.Context, req FetchRequest) ([]Permission, error)

	// Authorize submits the signed permission for on-chain approval and
	// returns the approval transaction reference.
	Authorize(ctx context.Context, perm Permission) (string, error)

	// Spend moves amountWei from the permission's account to its spender
	// using a previously approved permission. Fails with ErrNoPermission when
	// the approval is missing or exhausted.
	Spend(ctx context.Context, perm Permission, amountWei string) (string, error)

	// Payout moves amountWei from the custodial agent wallet to the given
	// address.
	Payout(ctx context.Context, to string, amountWei string) (string, error)
}

// Options configures the HTTP rails client.
type Options struct {
	Endpoint string
	// WalletID and WalletSeed identify the custodial agent wallet to the
	// provider; the seed never leaves the request signer.
	WalletID   string
	WalletSeed string
	NetworkID  string
	// Timeout bounds each confirmation wait. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a confirmation wait when Options.Timeout is unset.
const DefaultTimeout = 3 * time.Minute
