// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package ticket

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/usercfg"
)

// loginTicketRe captures the user, the embedded timestamp and the signature
// of a login ticket. The user part is matched loosely here; the signature
// check binds the exact bytes anyway.
var loginTicketRe = regexp.MustCompile(`^PVE:([^\s:]+):([A-Fa-f0-9]{8})::([^:\s]+)$`)

// IssueLoginTicket mints a session ticket for an authenticated user.
func (a *Authority) IssueLoginTicket(user string) (string, error) {
	plain := "PVE:" + user + ":" + a.timestamp()
	sig, err := a.sign(plain)
	if err != nil {
		recordTicket("login", "sign_failed")
		return "", err
	}
	recordTicket("login", "issued")
	return plain + "::" + base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyLoginTicket validates a session ticket and returns the embedded
// user plus the ticket's age in seconds, so callers can decide when to
// refresh. Every failure collapses to a single error kind so callers cannot
// distinguish a forged ticket from an expired one; the precise cause is
// attached as error context for server-side logs only.
func (a *Authority) VerifyLoginTicket(ticket string) (string, int64, error) {
	m := loginTicketRe.FindStringSubmatch(ticket)
	if m == nil {
		return "", 0, a.invalidLogin("malformed")
	}
	user, hexTS, encoded := m[1], m[2], m[3]

	if !usercfg.ValidUserID(user) {
		return "", 0, a.invalidLogin("malformed user")
	}
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", 0, a.invalidLogin("bad signature encoding")
	}
	plain := "PVE:" + user + ":" + hexTS
	if !a.verifySig(plain, sig) {
		return "", 0, a.invalidLogin("signature mismatch")
	}
	age, ok := a.age(hexTS)
	if !ok || !inWindow(age, sessionLifetime, sessionSkew) {
		return "", 0, a.invalidLogin("outside validity window")
	}
	recordTicket("login", "verified")
	return user, age, nil
}

func (a *Authority) invalidLogin(cause string) error {
	recordTicket("login", "rejected")
	return oops.Code("INVALID_TICKET").With("cause", cause).Errorf("invalid ticket")
}

// IssueCSRFToken mints the CSRF prevention token paired with a login
// ticket. It is bound to the user with the symmetric secret, so any cluster
// node holding the secret can verify it without the key pair.
func (a *Authority) IssueCSRFToken(user string) string {
	ts := a.timestamp()
	mac := a.mac(ts + ":" + user)
	return ts + ":" + base64.StdEncoding.EncodeToString(mac)
}

// VerifyCSRFToken validates a CSRF token against the user of the
// accompanying session. The validity window matches the login ticket's.
func (a *Authority) VerifyCSRFToken(user, token string) error {
	invalid := oops.Code("INVALID_CSRF_TOKEN").Errorf("invalid CSRF token")

	hexTS, encoded, ok := strings.Cut(token, ":")
	if !ok || len(hexTS) != 8 {
		return invalid
	}
	mac, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return invalid
	}
	if !macEqual(a.mac(hexTS+":"+user), mac) {
		return invalid
	}
	if !a.checkWindow(hexTS, sessionLifetime, sessionSkew) {
		return invalid
	}
	return nil
}
