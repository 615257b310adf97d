package proof

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/typestake/errors"
)

func sampleEnvelopeJSON(wpm interface{}, challengeID string) string {
	params, _ := json.Marshal(map[string]interface{}{
		"paramValues": map[string]interface{}{"wpm": wpm},
	})
	claimCtx, _ := json.Marshal(map[string]string{
		"contextAddress": "0x0",
		"contextMessage": challengeID,
	})
	env := map[string]interface{}{
		"claimData": map[string]interface{}{
			"provider":   "typing-test",
			"parameters": string(params),
			"context":    string(claimCtx),
		},
		"signatures": []string{"0xsig"},
		"witnesses":  []map[string]string{{"id": "0xw1", "url": "wss://witness.example.com"}},
	}
	out, _ := json.Marshal(env)
	return string(out)
}

func TestDecodePayload(t *testing.T) {
	raw := url.QueryEscape(sampleEnvelopeJSON("55", "race42"))

	env, err := DecodePayload([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, env.ClaimData)
	assert.Len(t, env.Signatures, 1)

	id, err := env.ChallengeID()
	require.NoError(t, err)
	assert.Equal(t, "race42", id)
}

func TestDecodePayloadBadJSON(t *testing.T) {
	_, err := DecodePayload([]byte("not%20json"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"complete", Envelope{
			ClaimData:  &ClaimData{},
			Signatures: []string{"0xsig"},
			Witnesses:  []Witness{{ID: "0xw"}},
		}, true},
		{"no claim data", Envelope{
			Signatures: []string{"0xsig"},
			Witnesses:  []Witness{{ID: "0xw"}},
		}, false},
		{"no signatures", Envelope{
			ClaimData: &ClaimData{},
			Witnesses: []Witness{{ID: "0xw"}},
		}, false},
		{"no witnesses", Envelope{
			ClaimData:  &ClaimData{},
			Signatures: []string{"0xsig"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateStructure()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.KindMalformed))
			}
		})
	}
}

func TestMetric(t *testing.T) {
	env, err := DecodePayload([]byte(url.QueryEscape(sampleEnvelopeJSON("55.5", "race42"))))
	require.NoError(t, err)

	wpm, err := env.Metric()
	require.NoError(t, err)
	assert.Equal(t, 55.5, wpm)
}

func TestMetricNumericValue(t *testing.T) {
	env, err := DecodePayload([]byte(url.QueryEscape(sampleEnvelopeJSON(62, "race42"))))
	require.NoError(t, err)

	wpm, err := env.Metric()
	require.NoError(t, err)
	assert.Equal(t, 62.0, wpm)
}

func TestMetricMissing(t *testing.T) {
	env := &Envelope{ClaimData: &ClaimData{Parameters: `{"paramValues":{}}`}}
	_, err := env.Metric()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestMetricGarbageParameters(t *testing.T) {
	env := &Envelope{ClaimData: &ClaimData{Parameters: `not json at all`}}
	_, err := env.Metric()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestChallengeIDMissing(t *testing.T) {
	env := &Envelope{ClaimData: &ClaimData{Context: `{"contextAddress":"0x0"}`}}
	_, err := env.ChallengeID()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env Envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		assert.NotNil(t, env.ClaimData)
		_ = json.NewEncoder(w).Encode(map[string]bool{"verified": true})
	}))
	defer srv.Close()

	env, err := DecodePayload([]byte(url.QueryEscape(sampleEnvelopeJSON("55", "race42"))))
	require.NoError(t, err)

	ok, err := NewHTTPVerifier(srv.URL, 0).Verify(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPVerifierInvalidProofIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"verified": false})
	}))
	defer srv.Close()

	ok, err := NewHTTPVerifier(srv.URL, 0).Verify(context.Background(), &Envelope{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPVerifierUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	_, err := NewHTTPVerifier(srv.URL, 0).Verify(context.Background(), &Envelope{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
}

func TestRequestBuilder(t *testing.T) {
	b := NewRequestBuilder("app-1", "secret", "provider-9", "https://relay.example.com/")

	out, err := b.Build("race42")
	require.NoError(t, err)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "app-1", cfg["applicationId"])
	assert.Equal(t, "provider-9", cfg["providerId"])
	assert.Equal(t, "https://relay.example.com/receive-proofs", cfg["callbackUrl"])
	assert.NotEmpty(t, cfg["signature"])

	reqCtx := cfg["context"].(map[string]interface{})
	assert.Equal(t, "race42", reqCtx["contextMessage"])
}

func TestRequestBuilderEmptyID(t *testing.T) {
	b := NewRequestBuilder("app-1", "secret", "provider-9", "https://relay.example.com")
	_, err := b.Build("")
	require.Error(t, err)
}
