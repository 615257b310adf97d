package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/typestake/settle"
	"github.com/m4xw311/typestake/store"
)

// CreateChallengeTool creates a new typing challenge and moves the initial
// stake into the agent wallet.
type CreateChallengeTool struct {
	Engine *settle.Engine
}

func (t *CreateChallengeTool) Name() string { return "create_challenge" }
func (t *CreateChallengeTool) Description() string {
	return "Creates a new typing challenge and deposits the initial stake. Args: challengeId (string), targetWpm (number)."
}

func (t *CreateChallengeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id, err := stringArg(args, "challengeId")
	if err != nil {
		return "", err
	}
	targetWPM, err := numberArg(args, "targetWpm")
	if err != nil {
		return "", err
	}

	challenge, txRef, err := t.Engine.CreateChallenge(ctx, id, targetWPM)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created challenge %s with target %v WPM. Stake transaction: %s",
		challenge.ChallengeID, challenge.TargetWPM, txRef), nil
}

// ListChallengesTool lists all pending typing challenges.
type ListChallengesTool struct {
	Store *store.Store
}

func (t *ListChallengesTool) Name() string { return "list_challenges" }
func (t *ListChallengesTool) Description() string {
	return "Lists all available typing challenges. No args."
}

func (t *ListChallengesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	challenges, err := t.Store.ListAll(ctx)
	if err != nil {
		return "", err
	}
	if len(challenges) == 0 {
		return "There are no pending challenges.", nil
	}

	lines := make([]string, 0, len(challenges))
	for _, c := range challenges {
		lines = append(lines, fmt.Sprintf("Challenge ID: %s, Target WPM: %v, Completed: %v",
			c.ChallengeID, c.TargetWPM, c.Completed))
	}
	return strings.Join(lines, "\n"), nil
}
