package tools

import (
	"context"

	"github.com/m4xw311/typestake/proof"
	"github.com/m4xw311/typestake/store"
)

// GenerateProofRequestTool builds the proof-request config for one challenge
// attempt. The returned JSON is handed to the browser, which drives the
// mobile capture flow; the finished proof comes back on the callback route.
type GenerateProofRequestTool struct {
	Store   *store.Store
	Builder *proof.RequestBuilder
}

func (t *GenerateProofRequestTool) Name() string { return "generate_proof_request" }
func (t *GenerateProofRequestTool) Description() string {
	return "Generates a proof request config for attempting a challenge. Args: challengeId (string)."
}

func (t *GenerateProofRequestTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id, err := stringArg(args, "challengeId")
	if err != nil {
		return "", err
	}

	// The challenge must exist before an attempt is set up.
	if _, err := t.Store.Get(ctx, id); err != nil {
		return "", err
	}

	return t.Builder.Build(id)
}
