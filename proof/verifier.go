package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m4xw311/typestake/errors"
)

// Verifier checks a structurally valid envelope against the attestation
// network. A false result means the proof is cryptographically invalid; an
// error means the verdict could not be obtained at all.
type Verifier interface {
	Verify(ctx context.Context, env *Envelope) (bool, error)
}

// HTTPVerifier delegates verification to the proof provider's verification
// endpoint.
type HTTPVerifier struct {
	url  string
	http *http.Client
}

// NewHTTPVerifier builds a verifier for the given endpoint. A zero timeout
// defaults to 30 seconds.
func NewHTTPVerifier(url string, timeout time.Duration) *HTTPVerifier {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPVerifier{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, env *Envelope) (bool, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return false, errors.Wrapf(err, "encoding proof for verification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrapf(err, "building verification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return false, errors.WrapKind(err, errors.KindUpstream, "proof verifier unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.WrapKind(err, errors.KindUpstream, "reading verifier response")
	}
	if resp.StatusCode != http.StatusOK {
		return false, errors.WithKind(errors.KindUpstream,
			"proof verifier returned %d", resp.StatusCode)
	}

	var verdict struct {
		Verified bool `json:"verified"`
	}
	if err := json.Unmarshal(respBody, &verdict); err != nil {
		return false, errors.WrapKind(err, errors.KindUpstream, "decoding verifier verdict")
	}
	return verdict.Verified, nil
}

var _ Verifier = (*HTTPVerifier)(nil)
