// Package settle implements the reward-settlement state machine: challenge
// creation with its seed funding, and the proof-callback pipeline that
// decides whether a claimed result earns the payout.
package settle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/m4xw311/typestake/errors"
	"github.com/m4xw311/typestake/proof"
	"github.com/m4xw311/typestake/rails"
	"github.com/m4xw311/typestake/store"
)

// Status is the terminal state of one settlement attempt.
type Status string

const (
	// StatusRewarded: proof qualified, payout confirmed, challenge deleted.
	StatusRewarded Status = "rewarded"
	// StatusRejected: proof valid but below target; challenge stays pending
	// and the attempt may be repeated.
	StatusRejected Status = "rejected"
	// StatusAborted: the pipeline failed before a verdict; nothing mutated.
	StatusAborted Status = "aborted"
)

// Outcome is the result of one settlement attempt, broadcast to connected
// clients and returned to the callback caller.
type Outcome struct {
	Status      Status  `json:"status"`
	ChallengeID string  `json:"challengeId,omitempty"`
	Metric      float64 `json:"metric,omitempty"`
	Message     string  `json:"message"`
	TxRef       string  `json:"txRef,omitempty"`
}

// Notifier fans a settlement outcome out to whoever is listening. The engine
// never blocks on it beyond the call itself.
type Notifier interface {
	NotifySettlement(ctx context.Context, o Outcome)
}

// Config carries the engine's fixed policy values.
type Config struct {
	ChainID         string
	AccountAddress  string // user wallet granting the spend permission
	AgentAddress    string // custodial spender
	SeedAmountWei   string // funding moved user -> agent on challenge creation
	RewardAmountWei string // payout moved agent -> user on a qualifying proof
}

// Engine coordinates store, rails and verifier. The challenge store is the
// single source of truth; SettleProof holds a per-challenge-id lock across
// lookup, payout and deletion so duplicate deliveries cannot double-pay.
type Engine struct {
	store    *store.Store
	provider rails.Provider
	verifier proof.Verifier
	cfg      Config
	log      *slog.Logger

	notifier Notifier
	locks    *keyedMutex
}

// New builds a settlement engine. The notifier is attached later via
// SetNotifier because the agent bridge that implements it needs the engine's
// operations for its own tools.
func New(st *store.Store, provider rails.Provider, verifier proof.Verifier, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		provider: provider,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		locks:    newKeyedMutex(),
	}
}

// SetNotifier attaches the outcome fan-out. A nil notifier is allowed; the
// engine then settles silently.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// CreateChallenge seeds the agent wallet from the user's spend permission and
// then persists the challenge. The funding transfer comes first: a challenge
// must never exist without its stake. The two steps are not atomic; if the
// record insert fails after a confirmed transfer the operator reconciles from
// the logged transaction reference.
func (e *Engine) CreateChallenge(ctx context.Context, id string, targetWPM float64) (*store.Challenge, string, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	txRef, err := e.Deposit(ctx, e.cfg.SeedAmountWei)
	if err != nil {
		return nil, "", errors.Wrapf(err, "seeding challenge %q", id)
	}

	challenge, err := e.store.Create(ctx, id, targetWPM)
	if err != nil {
		e.log.Error("challenge record not created after confirmed seed transfer; manual reconciliation required",
			"challenge_id", id, "tx_ref", txRef, "err", err)
		return nil, "", err
	}

	e.log.Info("challenge created", "challenge_id", id, "target_wpm", targetWPM, "tx_ref", txRef)
	return challenge, txRef, nil
}

// Deposit moves amountWei from the user to the agent wallet using the user's
// spend permission, authorizing lazily: the approval transaction is only
// submitted when the provider reports no usable approval for the fetched
// permission, and the spend is retried exactly once after it.
func (e *Engine) Deposit(ctx context.Context, amountWei string) (string, error) {
	perms, err := e.provider.FetchPermissions(ctx, rails.FetchRequest{
		ChainID:     e.cfg.ChainID,
		Account:     e.cfg.AccountAddress,
		Spender:     e.cfg.AgentAddress,
		PageOptions: rails.PageOptions{PageSize: 10},
	})
	if err != nil {
		return "", err
	}
	if len(perms) == 0 {
		return "", errors.WithKind(errors.KindUpstream,
			"no spend permission granted for account %s, spender %s", e.cfg.AccountAddress, e.cfg.AgentAddress)
	}
	perm := perms[0]

	txRef, err := e.provider.Spend(ctx, perm, amountWei)
	if err == nil {
		return txRef, nil
	}
	if !stderrors.Is(err, rails.ErrNoPermission) {
		return "", err
	}

	e.log.Info("spend permission not yet approved on-chain, authorizing", "account", perm.SpendPermission.Account)
	approveRef, err := e.provider.Authorize(ctx, perm)
	if err != nil {
		return "", errors.Wrapf(err, "approving spend permission")
	}
	e.log.Info("spend permission approved", "tx_ref", approveRef)

	return e.provider.Spend(ctx, perm, amountWei)
}

// Payout moves amountWei from the custodial agent wallet back to the user.
func (e *Engine) Payout(ctx context.Context, amountWei string) (string, error) {
	return e.provider.Payout(ctx, e.cfg.AccountAddress, amountWei)
}

// SettleProof runs the full callback pipeline on a raw proof delivery. The
// returned outcome is non-nil whenever a verdict was reached (rewarded or
// rejected); a non-nil error means the pipeline aborted and carries the kind
// the HTTP layer maps to a status code. The outcome, success or failure, is
// always pushed through the notifier.
func (e *Engine) SettleProof(ctx context.Context, raw []byte) (*Outcome, error) {
	outcome, err := e.settle(ctx, raw)
	if err != nil {
		e.notify(ctx, Outcome{
			Status:  StatusAborted,
			Message: fmt.Sprintf("Proof settlement failed: %v", err),
		})
		return nil, err
	}
	e.notify(ctx, *outcome)
	return outcome, nil
}

func (e *Engine) settle(ctx context.Context, raw []byte) (*Outcome, error) {
	env, err := proof.DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	if err := env.ValidateStructure(); err != nil {
		return nil, err
	}

	verified, err := e.verifier.Verify(ctx, env)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, errors.WithKind(errors.KindVerification, "invalid proof")
	}

	id, err := env.ChallengeID()
	if err != nil {
		return nil, err
	}

	// Everything from the existence check to the delete runs under the
	// per-id lock: a duplicate delivery either waits here and then observes
	// the deleted record, or arrives later and misses it outright.
	unlock := e.locks.lock(id)
	defer unlock()

	challenge, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wpm, err := env.Metric()
	if err != nil {
		return nil, err
	}

	e.log.Info("proof verified", "challenge_id", id, "wpm", wpm, "target_wpm", challenge.TargetWPM)

	// Strictly greater than the target qualifies; hitting it exactly does not.
	if wpm <= challenge.TargetWPM {
		return &Outcome{
			Status:      StatusRejected,
			ChallengeID: id,
			Metric:      wpm,
			Message: fmt.Sprintf("Your typing speed of %v WPM does not qualify for a reward. You need more than %v WPM.",
				wpm, challenge.TargetWPM),
		}, nil
	}

	txRef, err := e.Payout(ctx, e.cfg.RewardAmountWei)
	if err != nil {
		// The challenge stays pending: the payout can be retried with a fresh
		// proof without any risk of having paid twice.
		return nil, errors.Wrapf(err, "paying reward for challenge %q", id)
	}

	if err := e.store.Delete(ctx, id); err != nil {
		e.log.Error("challenge not deleted after confirmed payout; manual reconciliation required",
			"challenge_id", id, "tx_ref", txRef, "err", err)
		return nil, errors.Wrapf(err, "finalizing challenge %q after payout", id)
	}

	e.log.Info("challenge rewarded", "challenge_id", id, "wpm", wpm, "tx_ref", txRef)
	return &Outcome{
		Status:      StatusRewarded,
		ChallengeID: id,
		Metric:      wpm,
		TxRef:       txRef,
		Message: fmt.Sprintf("Congratulations! Your typing speed of %v WPM qualifies for a reward. Transaction: %s",
			wpm, txRef),
	}, nil
}

func (e *Engine) notify(ctx context.Context, o Outcome) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifySettlement(ctx, o)
}
