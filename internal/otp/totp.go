// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package otp verifies second factors: RFC 6238 time-based codes against
// locally registered secrets, and one-time passwords validated by a remote
// service speaking the Yubico validation protocol.
//
// Every failure surfaces as OTP_FAILED. The verifiers fail closed: a
// transport error or a malformed response counts as a failed factor, never
// as a skipped one.
package otp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/samber/oops"
)

// TOTP parameters shared with enrollment. One step of skew in either
// direction tolerates client clock drift.
const (
	totpPeriod = 30
	totpSkew   = 1
	totpDigits = otp.DigitsSix
)

// VerifyTOTP checks a six digit code against every registered base32
// secret at the given time. The first match wins.
func VerifyTOTP(code string, secrets []string, at time.Time) error {
	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
	for _, secret := range secrets {
		ok, err := totp.ValidateCustom(code, secret, at, opts)
		if err != nil {
			// Unusable secret; keep trying the others.
			continue
		}
		if ok {
			return nil
		}
	}
	return oops.Code("OTP_FAILED").Errorf("one-time password verification failed")
}
