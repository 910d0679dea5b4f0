// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package ticket

import (
	"crypto/rand"
	"crypto/rsa"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtstack/access/pkg/errutil"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testAuthority builds an Authority around a shared test key pair and a
// settable clock.
func testAuthority(t *testing.T) (*Authority, *time.Time) {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})

	now := time.Unix(1700000000, 0)
	a := New(testKey, &testKey.PublicKey, []byte("0123456789abcdef0123"),
		WithClock(func() time.Time { return now }))
	return a, &now
}

func TestLoginTicketRoundTrip(t *testing.T) {
	a, _ := testAuthority(t)

	ticket, err := a.IssueLoginTicket("alice@pam")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket, "PVE:alice@pam:"), "ticket %q", ticket)
	assert.Regexp(t, regexp.MustCompile(`^PVE:alice@pam:[A-F0-9]{8}::[A-Za-z0-9+/]+=*$`), ticket)

	user, age, err := a.VerifyLoginTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, "alice@pam", user)
	assert.Zero(t, age, "issued and verified under the same clock")
}

func TestVerifyLoginTicketRejections(t *testing.T) {
	a, _ := testAuthority(t)

	valid, err := a.IssueLoginTicket("alice@pam")
	require.NoError(t, err)

	tampered := strings.Replace(valid, "alice", "mallory", 1)

	otherKey := mustGenerateKey(t)
	other := New(otherKey, &otherKey.PublicKey, []byte("other"))
	foreign, err := other.IssueLoginTicket("alice@pam")
	require.NoError(t, err)

	tests := []struct {
		name   string
		ticket string
	}{
		{"empty", ""},
		{"wrong prefix", "PVEVNC:alice@pam:00000000::c2ln"},
		{"no signature", "PVE:alice@pam:00000000"},
		{"bad base64", "PVE:alice@pam:00000000::%%%"},
		{"tampered user", tampered},
		{"foreign key", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.VerifyLoginTicket(tt.ticket)
			errutil.AssertErrorCode(t, err, "INVALID_TICKET")
		})
	}
}

func TestLoginTicketValidityWindow(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		valid   bool
	}{
		{"fresh", 0, true},
		{"almost expired", 7199 * time.Second, true},
		{"expired", 7200 * time.Second, false},
		{"tolerated skew", -299 * time.Second, true},
		{"excessive skew", -300 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, now := testAuthority(t)
			ticket, err := a.IssueLoginTicket("alice@pam")
			require.NoError(t, err)

			*now = now.Add(tt.advance)
			_, age, err := a.VerifyLoginTicket(ticket)
			if tt.valid {
				assert.NoError(t, err)
				assert.Equal(t, int64(tt.advance/time.Second), age)
			} else {
				errutil.AssertErrorCode(t, err, "INVALID_TICKET")
			}
		})
	}
}

func TestCSRFToken(t *testing.T) {
	a, now := testAuthority(t)

	token := a.IssueCSRFToken("alice@pam")
	assert.Regexp(t, regexp.MustCompile(`^[A-F0-9]{8}:[A-Za-z0-9+/]+=*$`), token)

	require.NoError(t, a.VerifyCSRFToken("alice@pam", token))

	t.Run("wrong user", func(t *testing.T) {
		err := a.VerifyCSRFToken("bob@pam", token)
		errutil.AssertErrorCode(t, err, "INVALID_CSRF_TOKEN")
	})
	t.Run("malformed", func(t *testing.T) {
		err := a.VerifyCSRFToken("alice@pam", "not-a-token")
		errutil.AssertErrorCode(t, err, "INVALID_CSRF_TOKEN")
	})
	t.Run("expired", func(t *testing.T) {
		*now = now.Add(7200 * time.Second)
		err := a.VerifyCSRFToken("alice@pam", token)
		errutil.AssertErrorCode(t, err, "INVALID_CSRF_TOKEN")
	})
}

func TestVNCTicket(t *testing.T) {
	a, now := testAuthority(t)

	ticket, err := a.IssueVNCTicket("alice@pam", "/vms/100")
	require.NoError(t, err)

	// The wire form carries the timestamp and signature only; user and
	// path stay implicit in the signed plaintext.
	assert.NotContains(t, ticket, "alice")
	assert.NotContains(t, ticket, "/vms/100")

	require.NoError(t, a.VerifyVNCTicket(ticket, "alice@pam", "/vms/100"))

	t.Run("wrong path", func(t *testing.T) {
		err := a.VerifyVNCTicket(ticket, "alice@pam", "/vms/101")
		errutil.AssertErrorCode(t, err, "INVALID_TICKET")
	})
	t.Run("wrong user", func(t *testing.T) {
		err := a.VerifyVNCTicket(ticket, "bob@pam", "/vms/100")
		errutil.AssertErrorCode(t, err, "INVALID_TICKET")
	})
	t.Run("window", func(t *testing.T) {
		*now = now.Add(39 * time.Second)
		assert.NoError(t, a.VerifyVNCTicket(ticket, "alice@pam", "/vms/100"))
		*now = now.Add(1 * time.Second)
		err := a.VerifyVNCTicket(ticket, "alice@pam", "/vms/100")
		errutil.AssertErrorCode(t, err, "INVALID_TICKET")
	})
}

func TestSPICETickets(t *testing.T) {
	a, now := testAuthority(t)

	pair, err := a.IssueSPICETickets("alice@pam", 100, "Node-A.example")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[a-f0-9]{40}$`), pair.Ticket)
	assert.Contains(t, pair.Proxy, ":100:node-a.example::", "node name is lowercased")

	target, err := a.VerifySPICEProxyDescriptor(pair.Proxy)
	require.NoError(t, err)
	assert.Equal(t, 100, target.VMID)
	assert.Equal(t, "node-a.example", target.Node)
	assert.Zero(t, target.Port)

	t.Run("unique per issue", func(t *testing.T) {
		again, err := a.IssueSPICETickets("alice@pam", 100, "node-a.example")
		require.NoError(t, err)
		assert.NotEqual(t, pair.Ticket, again.Ticket)
	})

	t.Run("port suffix", func(t *testing.T) {
		target, err := a.VerifySPICEProxyDescriptor(pair.Proxy + ":61000")
		require.NoError(t, err)
		assert.Equal(t, 61000, target.Port)
	})

	t.Run("tampered vmid", func(t *testing.T) {
		tampered := strings.Replace(pair.Proxy, ":100:", ":101:", 1)
		_, err := a.VerifySPICEProxyDescriptor(tampered)
		errutil.AssertErrorCode(t, err, "INVALID_TICKET")
	})

	t.Run("window", func(t *testing.T) {
		*now = now.Add(40 * time.Second)
		_, err := a.VerifySPICEProxyDescriptor(pair.Proxy)
		errutil.AssertErrorCode(t, err, "INVALID_TICKET")
	})
}

func mustGenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}
