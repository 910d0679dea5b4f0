// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/privilege"
)

// SuperUser is the distinguished super-user. It always resolves to the
// implicit Administrator role and its own ACL membership is never persisted.
const SuperUser = "root@pam"

// User is one account, identified as name@realm.
type User struct {
	ID        string
	Enabled   bool
	Expire    int64 // unix epoch, 0 = never
	FirstName string
	LastName  string
	Email     string
	Comment   string
	Keys      []string // registered OTP key material, opaque
	MFA       bool     // second factor required via an external provider
	MFAAlias  string
}

// ExpiredAt reports whether the account is expired at the given epoch second.
func (u *User) ExpiredAt(now int64) bool {
	return u.Expire != 0 && u.Expire < now
}

// Group is a named set of users. Membership is a back-reference: deleting a
// user must also purge it from every group.
type Group struct {
	ID      string
	Comment string
	Members map[string]bool // user IDs
}

// Pool groups resources for permission scoping. Every member belongs to at
// most one pool; violations are dropped with a diagnostic at parse time.
type Pool struct {
	ID      string
	Comment string
	VMs     map[int]bool
	Storage map[string]bool
}

// RoleGrants maps a role identifier to its propagate flag.
type RoleGrants map[string]bool

// ACLEntry holds the grants at one normalized path, split by subject kind.
type ACLEntry struct {
	Users  map[string]RoleGrants
	Groups map[string]RoleGrants
}

// newACLEntry allocates an empty entry.
func newACLEntry() *ACLEntry {
	return &ACLEntry{
		Users:  make(map[string]RoleGrants),
		Groups: make(map[string]RoleGrants),
	}
}

// Config is one immutable-by-convention snapshot of the whole configuration.
// Readers never mutate a shared snapshot; mutations go through Manager.Update
// which operates on a private copy parsed inside the critical section.
type Config struct {
	Users  map[string]*User
	Groups map[string]*Group
	Roles  map[string]map[string]bool // role → privilege token set
	ACL    map[string]*ACLEntry       // normalized path → grants
	Pools  map[string]*Pool

	// Reverse indexes enforcing the one-pool-per-member rule.
	VMPool      map[int]string
	StoragePool map[string]string
}

// NewConfig returns an empty configuration carrying the derived special
// role set.
func NewConfig() *Config {
	cfg := &Config{
		Users:       make(map[string]*User),
		Groups:      make(map[string]*Group),
		Roles:       make(map[string]map[string]bool),
		ACL:         make(map[string]*ACLEntry),
		Pools:       make(map[string]*Pool),
		VMPool:      make(map[int]string),
		StoragePool: make(map[string]string),
	}
	for name, privs := range privilege.SpecialRoles() {
		set := make(map[string]bool, len(privs))
		for _, p := range privs {
			set[p] = true
		}
		cfg.Roles[name] = set
	}
	return cfg
}

// GroupsOf returns the IDs of every group the user belongs to.
func (c *Config) GroupsOf(userID string) []string {
	var out []string
	for id, g := range c.Groups {
		if g.Members[userID] {
			out = append(out, id)
		}
	}
	return out
}

// Warning is one non-fatal diagnostic collected during parsing.
type Warning struct {
	Line    int // 1-based line number, 0 if not tied to a line
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	pathRe  = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
)

// ValidIdent reports whether id is a well-formed group, role or pool
// identifier.
func ValidIdent(id string) bool {
	return identRe.MatchString(id)
}

// ParseUserID splits a user identifier into name and realm. Both parts must
// be non-empty identifier strings.
func ParseUserID(id string) (name, realm string, err error) {
	at := strings.LastIndex(id, "@")
	if at <= 0 || at == len(id)-1 {
		return "", "", oops.
			Code("MALFORMED_USERID").
			With("userid", id).
			Errorf("user ID must have the form name@realm")
	}
	name, realm = id[:at], id[at+1:]
	if !identRe.MatchString(name) || !identRe.MatchString(realm) {
		return "", "", oops.
			Code("MALFORMED_USERID").
			With("userid", id).
			Errorf("user ID contains invalid characters")
	}
	return name, realm, nil
}

// ValidUserID reports whether id is a well-formed name@realm identifier.
func ValidUserID(id string) bool {
	_, _, err := ParseUserID(id)
	return err == nil
}

// NormalizePath canonicalizes a resource path: duplicate slashes collapse,
// trailing slashes are stripped, the empty remainder is the root "/".
// Anything outside the allowed character set is rejected, never coerced.
func NormalizePath(path string) (string, error) {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	if path != "/" && (!strings.HasPrefix(path, "/") || !pathRe.MatchString(path)) {
		return "", oops.
			Code("MALFORMED_PATH").
			With("path", path).
			Errorf("invalid resource path")
	}
	return path, nil
}
