// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package otp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtstack/access/pkg/errutil"
)

const (
	testAPIID = "42"
	testOTP   = "ccccccbchvthlivuitriujjifivbvtrjkjfirllluurj"
)

var testAPIKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

// validationServer fakes the remote validation service. mangle rewrites the
// response fields before signing (or after, for signature tampering).
func validationServer(t *testing.T, status string, mangle func(map[string]string)) *httptest.Server {
	t.Helper()
	apiKey, err := base64.StdEncoding.DecodeString(testAPIKey)
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		fields := map[string]string{
			"otp":    query.Get("otp"),
			"nonce":  query.Get("nonce"),
			"status": status,
		}
		if mangle != nil {
			mangle(fields)
		}
		fields["h"] = signParams(fields, apiKey)
		for key, value := range fields {
			fmt.Fprintf(w, "%s=%s\n", key, value)
		}
	}))
}

func TestRemoteVerify(t *testing.T) {
	registered := []string{"cccccccccccc", testOTP[:12]}

	t.Run("accepted", func(t *testing.T) {
		srv := validationServer(t, "OK", nil)
		defer srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		assert.NoError(t, NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, registered))
	})

	t.Run("rejected status", func(t *testing.T) {
		srv := validationServer(t, "REPLAYED_OTP", nil)
		defer srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, registered)
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})

	t.Run("mismatched otp echo", func(t *testing.T) {
		srv := validationServer(t, "OK", func(fields map[string]string) {
			fields["otp"] = "vvvvvvvvvvvvtampered"
		})
		defer srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, registered)
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})

	t.Run("unsigned response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			fmt.Fprintf(w, "otp=%s\nnonce=%s\nstatus=OK\nh=AAAA\n",
				query.Get("otp"), query.Get("nonce"))
		}))
		defer srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, registered)
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})

	t.Run("unregistered key", func(t *testing.T) {
		srv := validationServer(t, "OK", nil)
		defer srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, []string{"dddddddddddd"})
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})

	t.Run("too short", func(t *testing.T) {
		cfg := RemoteConfig{Endpoint: "http://unused", APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, "short", registered)
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})

	t.Run("unreachable service fails closed", func(t *testing.T) {
		srv := validationServer(t, "OK", nil)
		srv.Close()

		cfg := RemoteConfig{Endpoint: srv.URL, APIID: testAPIID, APIKey: testAPIKey}
		err := NewRemoteVerifier().Verify(context.Background(), cfg, testOTP, registered)
		errutil.AssertErrorCode(t, err, "OTP_FAILED")
	})
}
