// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package otp

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // the validation protocol mandates HMAC-SHA1
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
)

// publicIDLen is the length of the device public identity prefixed to every
// one-time password.
const publicIDLen = 12

// RemoteConfig identifies a validation service and the API credential used
// to sign requests to it.
type RemoteConfig struct {
	Endpoint string
	APIID    string
	APIKey   string // base64-encoded shared secret
}

// RemoteVerifier validates one-time passwords against a remote service.
// The zero value is not usable; construct with NewRemoteVerifier.
type RemoteVerifier struct {
	client *http.Client
}

// NewRemoteVerifier returns a verifier with a bounded request timeout so a
// stalled validation service fails the factor instead of hanging the login.
func NewRemoteVerifier() *RemoteVerifier {
	return &RemoteVerifier{client: &http.Client{Timeout: 30 * time.Second}}
}

// Verify submits the one-time password to the validation service and checks
// the response end to end: the response must carry a valid signature under
// the shared API key, echo the submitted password and nonce, report status
// OK, and the password's public identity must be among the key IDs
// registered for the account.
func (v *RemoteVerifier) Verify(ctx context.Context, cfg RemoteConfig, password string, registeredIDs []string) error {
	failed := func(cause string) error {
		return oops.Code("OTP_FAILED").With("cause", cause).
			Errorf("one-time password verification failed")
	}

	if len(password) <= publicIDLen {
		return failed("password too short")
	}
	publicID := password[:publicIDLen]
	if !slices.Contains(registeredIDs, publicID) {
		return failed("unregistered key")
	}

	apiKey, err := base64.StdEncoding.DecodeString(cfg.APIKey)
	if err != nil {
		return failed("bad api key encoding")
	}

	nonce, err := newNonce()
	if err != nil {
		return failed("nonce generation")
	}
	params := map[string]string{
		"id":    cfg.APIID,
		"otp":   password,
		"nonce": nonce,
	}
	params["h"] = signParams(params, apiKey)

	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return failed("bad endpoint")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return failed("transport error")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failed("unexpected http status")
	}

	fields, err := parseResponse(resp.Body)
	if err != nil {
		return failed("unreadable response")
	}

	respSig, err := base64.StdEncoding.DecodeString(fields["h"])
	if err != nil {
		return failed("bad response signature encoding")
	}
	unsigned := make(map[string]string, len(fields))
	for key, value := range fields {
		if key != "h" {
			unsigned[key] = value
		}
	}
	wantSig, err := base64.StdEncoding.DecodeString(signParams(unsigned, apiKey))
	if err != nil {
		return failed("signature computation")
	}
	if subtle.ConstantTimeCompare(wantSig, respSig) != 1 {
		return failed("response signature mismatch")
	}

	if fields["otp"] != password {
		return failed("otp mismatch")
	}
	if fields["nonce"] != nonce {
		return failed("nonce mismatch")
	}
	if fields["status"] != "OK" {
		return failed("status " + fields["status"])
	}
	return nil
}

// signParams computes the base64 HMAC-SHA1 over the parameters sorted by
// key and joined as key=value pairs with ampersands.
func signParams(params map[string]string, apiKey []byte) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + params[key]
	}
	mac := hmac.New(sha1.New, apiKey)
	mac.Write([]byte(strings.Join(pairs, "&")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// parseResponse reads the key=value lines of a validation response.
func parseResponse(body io.Reader) (map[string]string, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = value
	}
	return fields, scanner.Err()
}

func newNonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
