// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package access resolves role-based permissions over the hierarchical
// resource-path namespace.
//
// Grants apply at a path and, when flagged to propagate, at every descendant
// path. User-specific grants override group grants at the same ACL key, and
// among multiple matching keys the last one in ascending lexicographic
// string order wins outright — the accumulator is replaced, not merged.
// That ordering (rather than a depth-based most-specific-wins rule) is
// long-standing observable behavior that existing deployments depend on, so
// it is preserved exactly and covered by tests.
package access

import (
	"sort"
	"strings"
	"time"

	"github.com/virtstack/access/internal/privilege"
	"github.com/virtstack/access/internal/usercfg"
)

// ResolveRoles computes the role set for a user at a normalized path.
// The super-user unconditionally resolves to {Administrator}. If the
// winning accumulator contains NoAccess the result collapses to exactly
// {NoAccess}, masking every other grant.
func ResolveRoles(cfg *usercfg.Config, user, path string) map[string]bool {
	if user == usercfg.SuperUser {
		return map[string]bool{privilege.RoleAdministrator: true}
	}

	keys := make([]string, 0, len(cfg.ACL))
	for key := range cfg.ACL {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := cfg.GroupsOf(user)

	acc := map[string]bool{}
	for _, key := range keys {
		final := key == path
		if !final && key != "/" && !strings.HasPrefix(path, key+"/") {
			continue
		}
		entry := cfg.ACL[key]

		// A user-specific grant at this key replaces the accumulator and
		// shadows every group grant at the same key.
		found := collectRoles(entry.Users[user], final)
		if len(found) > 0 {
			acc = found
			continue
		}
		for _, group := range groups {
			for role := range collectRoles(entry.Groups[group], final) {
				found[role] = true
			}
		}
		if len(found) > 0 {
			acc = found
		}
	}

	if acc[privilege.RoleNoAccess] {
		return map[string]bool{privilege.RoleNoAccess: true}
	}
	return acc
}

// collectRoles keeps the roles of one grant set that apply at the target:
// grants at the target path itself always apply, grants at an ancestor only
// when flagged to propagate.
func collectRoles(grants usercfg.RoleGrants, final bool) map[string]bool {
	found := map[string]bool{}
	for role, propagate := range grants {
		if final || propagate {
			found[role] = true
		}
	}
	return found
}

// ResolvePrivileges unions the privilege sets of every resolved role.
func ResolvePrivileges(cfg *usercfg.Config, user, path string) map[string]bool {
	privs := map[string]bool{}
	for role := range ResolveRoles(cfg, user, path) {
		for token := range cfg.Roles[role] {
			privs[token] = true
		}
	}
	return privs
}

// Check reports whether the user holds every required privilege at path.
// The path is normalized first; a malformed path is rejected. An empty
// requirement list is denied: callers must name what they check for.
func Check(cfg *usercfg.Config, user, path string, required ...string) (bool, error) {
	start := time.Now()

	normalized, err := usercfg.NormalizePath(path)
	if err != nil {
		return false, err
	}

	privs := ResolvePrivileges(cfg, user, normalized)
	allowed := len(required) > 0
	for _, token := range required {
		if !privs[token] {
			allowed = false
			break
		}
	}

	recordCheck(time.Since(start), allowed)
	return allowed, nil
}
