package tools

import (
	"context"
	"fmt"

	"github.com/m4xw311/typestake/settle"
)

// DepositFundsTool moves ETH from the user to the agent wallet using the
// user's spend permission.
type DepositFundsTool struct {
	Engine *settle.Engine
}

func (t *DepositFundsTool) Name() string { return "deposit_funds" }
func (t *DepositFundsTool) Description() string {
	return "Deposits ETH from the user to the agent wallet. Args: amount (string, wei, e.g. '1000000000000000' for 0.001 ETH)."
}

func (t *DepositFundsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	amount, err := stringArg(args, "amount")
	if err != nil {
		return "", err
	}
	txRef, err := t.Engine.Deposit(ctx, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deposited %s wei to the agent wallet. Transaction: %s", amount, txRef), nil
}

// WithdrawFundsTool moves ETH from the agent wallet back to the user.
type WithdrawFundsTool struct {
	Engine *settle.Engine
}

func (t *WithdrawFundsTool) Name() string { return "withdraw_funds" }
func (t *WithdrawFundsTool) Description() string {
	return "Withdraws ETH from the agent wallet back to the user. Args: amount (string, wei)."
}

func (t *WithdrawFundsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	amount, err := stringArg(args, "amount")
	if err != nil {
		return "", err
	}
	txRef, err := t.Engine.Payout(ctx, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Withdrew %s wei to the user wallet. Transaction: %s", amount, txRef), nil
}
