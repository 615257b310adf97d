// Package proof adapts the third-party attestation provider: structural
// validation of inbound proof envelopes, delegation to the external verifier,
// extraction of the claimed metric and challenge linkage, and generation of
// the proof-request config handed to the mobile capture flow.
package proof

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/m4xw311/typestake/errors"
)

// ClaimData carries the attested claim. Parameters and Context are themselves
// JSON documents serialized as strings by the provider and are untrusted
// until parsed.
type ClaimData struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
	Owner      string `json:"owner"`
	TimestampS int64  `json:"timestampS"`
	Epoch      int64  `json:"epoch"`
	Identifier string `json:"identifier"`
}

// Witness identifies one attestor that co-signed the claim.
type Witness struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Envelope is a decoded proof payload. It is only constructed by
// DecodePayload and only trusted after ValidateStructure and a successful
// Verify; the extraction helpers still treat the nested documents as hostile.
type Envelope struct {
	ClaimData  *ClaimData `json:"claimData"`
	Signatures []string   `json:"signatures"`
	Witnesses  []Witness  `json:"witnesses"`
}

// DecodePayload reverses the callback transport encoding: the provider posts
// a URL-encoded JSON document as the raw request body.
func DecodePayload(raw []byte) (*Envelope, error) {
	decoded, err := url.QueryUnescape(string(raw))
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindMalformed, "url-decoding proof payload")
	}
	var env Envelope
	if err := json.Unmarshal([]byte(decoded), &env); err != nil {
		return nil, errors.WrapKind(err, errors.KindMalformed, "parsing proof payload")
	}
	return &env, nil
}

// ValidateStructure rejects envelopes missing claim data, signatures or
// witnesses. Cheap; runs before any cryptographic verification is attempted.
func (e *Envelope) ValidateStructure() error {
	if e.ClaimData == nil {
		return errors.WithKind(errors.KindMalformed, "proof is missing claim data")
	}
	if len(e.Signatures) == 0 {
		return errors.WithKind(errors.KindMalformed, "proof is missing signatures")
	}
	if len(e.Witnesses) == 0 {
		return errors.WithKind(errors.KindMalformed, "proof is missing witnesses")
	}
	return nil
}

// ChallengeID extracts the challenge linkage from the claim context. The
// context's contextMessage field is the sole tie between an inbound proof and
// a stored challenge.
func (e *Envelope) ChallengeID() (string, error) {
	if e.ClaimData == nil {
		return "", errors.WithKind(errors.KindMalformed, "proof is missing claim data")
	}
	var ctx struct {
		ContextAddress string `json:"contextAddress"`
		ContextMessage string `json:"contextMessage"`
	}
	if err := json.Unmarshal([]byte(e.ClaimData.Context), &ctx); err != nil {
		return "", errors.WrapKind(err, errors.KindMalformed, "parsing claim context")
	}
	if ctx.ContextMessage == "" {
		return "", errors.WithKind(errors.KindMalformed, "claim context has no challenge id")
	}
	return ctx.ContextMessage, nil
}

// Metric extracts the claimed words-per-minute from the claim parameters.
// The provider serializes parameter values as strings or numbers depending on
// provider version, so both are accepted.
func (e *Envelope) Metric() (float64, error) {
	if e.ClaimData == nil {
		return 0, errors.WithKind(errors.KindMalformed, "proof is missing claim data")
	}
	var params struct {
		ParamValues map[string]interface{} `json:"paramValues"`
	}
	if err := json.Unmarshal([]byte(e.ClaimData.Parameters), &params); err != nil {
		return 0, errors.WrapKind(err, errors.KindMalformed, "parsing claim parameters")
	}
	raw, ok := params.ParamValues["wpm"]
	if !ok {
		return 0, errors.WithKind(errors.KindMalformed, "wpm value not found in proof")
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		wpm, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.WrapKind(err, errors.KindMalformed, "wpm value %q is not numeric", v)
		}
		return wpm, nil
	default:
		return 0, errors.WithKind(errors.KindMalformed, "wpm value has unsupported type %T", raw)
	}
}
