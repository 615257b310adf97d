package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m4xw311/typestake/errors"
)

// RequestBuilder produces the proof-request config the browser hands to the
// mobile capture flow. The config tells the provider which data source to
// attest, which challenge the attempt belongs to, and where to deliver the
// finished proof.
type RequestBuilder struct {
	appID       string
	appSecret   string
	providerID  string
	callbackURL string
}

// NewRequestBuilder wires the provider credentials and the callback base URL
// (the /receive-proofs route is appended).
func NewRequestBuilder(appID, appSecret, providerID, callbackBase string) *RequestBuilder {
	return &RequestBuilder{
		appID:       appID,
		appSecret:   appSecret,
		providerID:  providerID,
		callbackURL: strings.TrimRight(callbackBase, "/") + "/receive-proofs",
	}
}

type requestContext struct {
	ContextAddress string `json:"contextAddress"`
	ContextMessage string `json:"contextMessage"`
}

type requestConfig struct {
	ApplicationID string         `json:"applicationId"`
	ProviderID    string         `json:"providerId"`
	SessionID     string         `json:"sessionId"`
	Context       requestContext `json:"context"`
	CallbackURL   string         `json:"callbackUrl"`
	Timestamp     int64          `json:"timestamp"`
	Signature     string         `json:"signature"`
}

// Build returns the serialized proof-request config for one challenge
// attempt. The context message carries the challenge id so the resulting
// proof can be tied back to the stored record.
func (b *RequestBuilder) Build(challengeID string) (string, error) {
	if challengeID == "" {
		return "", errors.WithKind(errors.KindMalformed, "challenge id is empty")
	}

	cfg := requestConfig{
		ApplicationID: b.appID,
		ProviderID:    b.providerID,
		SessionID:     uuid.NewString(),
		Context: requestContext{
			ContextAddress: "0x0",
			ContextMessage: challengeID,
		},
		CallbackURL: b.callbackURL,
		Timestamp:   time.Now().Unix(),
	}
	cfg.Signature = b.sign(cfg)

	out, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.Wrapf(err, "serializing proof request config")
	}
	return string(out), nil
}

// sign authenticates the request config to the provider with the app secret.
func (b *RequestBuilder) sign(cfg requestConfig) string {
	mac := hmac.New(sha256.New, []byte(b.appSecret))
	fmt.Fprintf(mac, "%s:%s:%s:%d", cfg.ApplicationID, cfg.ProviderID, cfg.SessionID, cfg.Timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}
