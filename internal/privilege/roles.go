// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package privilege

import "sort"

// Special role names that do not follow the PVE<Category><Tier> pattern.
const (
	RoleAdministrator = "Administrator"
	RoleNoAccess      = "NoAccess"
	RoleAdmin         = "PVEAdmin"
	RoleAuditor       = "PVEAuditor"
	RoleTemplateUser  = "PVETemplateUser"
)

// SpecialRoles derives the fixed special role set from the catalog.
// The returned map is freshly allocated on every call so callers may attach
// it to a mutable configuration snapshot.
//
// Derivation rules:
//   - Administrator: every privilege.
//   - NoAccess: no privileges; resolving to it masks all other grants.
//   - PVEAdmin: every privilege below the root tier.
//   - PVEAuditor: every audit-tier privilege.
//   - PVE<Category>Admin: all non-root privileges of the category.
//   - PVE<Category>User: user+audit privileges, only for categories that
//     have a user tier.
//   - PVETemplateUser: fixed {VM.Clone, VM.Audit}.
func SpecialRoles() map[string][]string {
	roles := map[string][]string{
		RoleAdministrator: All(),
		RoleNoAccess:      {},
		RoleTemplateUser:  {"VM.Clone", "VM.Audit"},
	}
	sort.Strings(roles[RoleTemplateUser])

	var admin, audit []string
	for _, p := range catalog {
		if p.Tier != TierRoot {
			admin = append(admin, p.Token)
		}
		if p.Tier == TierAudit {
			audit = append(audit, p.Token)
		}
	}
	sort.Strings(admin)
	sort.Strings(audit)
	roles[RoleAdmin] = admin
	roles[RoleAuditor] = audit

	for _, cat := range Categories() {
		roles["PVE"+string(cat)+"Admin"] = tokens(cat, TierAdmin, TierUser, TierAudit)
		if user := tokens(cat, TierUser); len(user) > 0 {
			roles["PVE"+string(cat)+"User"] = tokens(cat, TierUser, TierAudit)
		}
	}

	return roles
}

// specialRoleNames caches the derived role names for IsSpecialRole.
var specialRoleNames = func() map[string]bool {
	names := make(map[string]bool)
	for name := range SpecialRoles() {
		names[name] = true
	}
	return names
}()

// IsSpecialRole reports whether name is one of the derived special roles.
// Special roles are regenerated on every configuration load and must never
// be redefined by persisted role records.
func IsSpecialRole(name string) bool {
	return specialRoleNames[name]
}
