// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package ticket

import (
	"crypto/sha1" //nolint:gosec // established wire format for the SPICE ticket
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/virtstack/access/internal/usercfg"
)

var (
	vncTicketRe = regexp.MustCompile(`^PVEVNC:([A-Fa-f0-9]{8})::([^:\s]+)$`)

	// spiceProxyRe matches the proxy descriptor with its optional trailing
	// port field.
	spiceProxyRe = regexp.MustCompile(`^PVESPICE:([A-Fa-f0-9]{8}):(\d+):([a-z0-9.-]+)::([a-f0-9]{40})(?::(\d+))?$`)
)

// SPICETickets is the pair handed to a SPICE client: the session ticket the
// client presents to the VM, and the proxy descriptor that routes the
// connection to the right node.
type SPICETickets struct {
	Ticket string
	Proxy  string
}

// IssueVNCTicket mints a short-lived console ticket bound to a user and a
// resource path. The binding is part of the signed plaintext but not of the
// wire form, so the verifier must supply the same user and path.
func (a *Authority) IssueVNCTicket(user, path string) (string, error) {
	path, err := usercfg.NormalizePath(path)
	if err != nil {
		return "", err
	}
	ts := a.timestamp()
	sig, err := a.sign("PVEVNC:" + ts + ":" + user + ":" + path)
	if err != nil {
		recordTicket("vnc", "sign_failed")
		return "", err
	}
	recordTicket("vnc", "issued")
	return "PVEVNC:" + ts + "::" + base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyVNCTicket validates a console ticket against the expected user and
// path. Failures collapse to a single error kind, same as login tickets.
func (a *Authority) VerifyVNCTicket(ticket, user, path string) error {
	path, err := usercfg.NormalizePath(path)
	if err != nil {
		return a.invalidConsole("vnc", "malformed path")
	}
	m := vncTicketRe.FindStringSubmatch(ticket)
	if m == nil {
		return a.invalidConsole("vnc", "malformed")
	}
	hexTS, encoded := m[1], m[2]

	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return a.invalidConsole("vnc", "bad signature encoding")
	}
	if !a.verifySig("PVEVNC:"+hexTS+":"+user+":"+path, sig) {
		return a.invalidConsole("vnc", "signature mismatch")
	}
	if !a.checkWindow(hexTS, consoleLifetime, consoleSkew) {
		return a.invalidConsole("vnc", "outside validity window")
	}
	recordTicket("vnc", "verified")
	return nil
}

// IssueSPICETickets mints the ticket pair for a SPICE console connection to
// a VM on a node. The session ticket is derived from a signature over a
// fresh single-use nonce, so two calls never repeat even within the same
// second. The node name is lowercased into the descriptor.
func (a *Authority) IssueSPICETickets(user string, vmID int, node string) (SPICETickets, error) {
	nonce := ulid.Make().String()
	sig, err := a.sign("PVESPICE:" + nonce + ":" + user)
	if err != nil {
		recordTicket("spice", "sign_failed")
		return SPICETickets{}, err
	}
	digest := sha1.Sum(sig) //nolint:gosec

	payload := fmt.Sprintf("PVESPICE:%s:%d:%s", a.timestamp(), vmID, strings.ToLower(node))
	mac := hex.EncodeToString(a.mac(payload))

	recordTicket("spice", "issued")
	return SPICETickets{
		Ticket: hex.EncodeToString(digest[:]),
		Proxy:  payload + "::" + mac,
	}, nil
}

// SPICEProxyTarget is the routing information a proxy descriptor carries.
// Port is zero when the descriptor names no port.
type SPICEProxyTarget struct {
	VMID int
	Node string
	Port int
}

// VerifySPICEProxyDescriptor authenticates a proxy descriptor and extracts
// its routing target. Only the symmetric secret is needed, so any cluster
// node can route without the signing key pair.
func (a *Authority) VerifySPICEProxyDescriptor(descriptor string) (SPICEProxyTarget, error) {
	m := spiceProxyRe.FindStringSubmatch(descriptor)
	if m == nil {
		return SPICEProxyTarget{}, a.invalidConsole("spice", "malformed")
	}
	hexTS, vmField, node, macHex, portField := m[1], m[2], m[3], m[4], m[5]

	payload := "PVESPICE:" + hexTS + ":" + vmField + ":" + node
	mac, err := hex.DecodeString(macHex)
	if err != nil {
		return SPICEProxyTarget{}, a.invalidConsole("spice", "bad mac encoding")
	}
	if !macEqual(a.mac(payload), mac) {
		return SPICEProxyTarget{}, a.invalidConsole("spice", "mac mismatch")
	}
	if !a.checkWindow(hexTS, consoleLifetime, consoleSkew) {
		return SPICEProxyTarget{}, a.invalidConsole("spice", "outside validity window")
	}

	vmID, err := strconv.Atoi(vmField)
	if err != nil || vmID <= 0 {
		return SPICEProxyTarget{}, a.invalidConsole("spice", "bad vm id")
	}
	port := 0
	if portField != "" {
		if port, err = strconv.Atoi(portField); err != nil {
			return SPICEProxyTarget{}, a.invalidConsole("spice", "bad port")
		}
	}
	recordTicket("spice", "verified")
	return SPICEProxyTarget{VMID: vmID, Node: node, Port: port}, nil
}

func (a *Authority) invalidConsole(kind, cause string) error {
	recordTicket(kind, "rejected")
	return oops.Code("INVALID_TICKET").With("cause", cause).Errorf("invalid %s ticket", kind)
}
