// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package privilege holds the compiled-in catalog of privilege tokens.
//
// Every privilege belongs to exactly one category (VM, Sys, Datastore, User,
// Pool) and one tier (root, admin, user, audit). The special role set is
// derived deterministically from this catalog; it is never persisted and is
// regenerated on every configuration load.
package privilege

import "sort"

// Category groups privileges by the subsystem they guard.
type Category string

// Privilege categories.
const (
	CategoryVM        Category = "VM"
	CategorySys       Category = "Sys"
	CategoryDatastore Category = "Datastore"
	CategoryUser      Category = "User"
	CategoryPool      Category = "Pool"
)

// Tier ranks a privilege by the least powerful derived role that carries it.
type Tier string

// Privilege tiers. Root-tier privileges are reserved for Administrator.
const (
	TierRoot  Tier = "root"
	TierAdmin Tier = "admin"
	TierUser  Tier = "user"
	TierAudit Tier = "audit"
)

// Privilege is one catalog entry.
type Privilege struct {
	Token    string
	Category Category
	Tier     Tier
}

// catalog is the complete privilege taxonomy. Token strings are part of the
// persisted configuration format and must never be renamed.
var catalog = []Privilege{
	// VM lifecycle and configuration.
	{"VM.Allocate", CategoryVM, TierAdmin},
	{"VM.Migrate", CategoryVM, TierAdmin},
	{"VM.Config.Disk", CategoryVM, TierAdmin},
	{"VM.Config.CPU", CategoryVM, TierAdmin},
	{"VM.Config.Memory", CategoryVM, TierAdmin},
	{"VM.Config.Network", CategoryVM, TierAdmin},
	{"VM.Config.HWType", CategoryVM, TierAdmin},
	{"VM.Config.Options", CategoryVM, TierAdmin},
	{"VM.Config.CDROM", CategoryVM, TierUser},
	{"VM.Console", CategoryVM, TierUser},
	{"VM.PowerMgmt", CategoryVM, TierUser},
	{"VM.Clone", CategoryVM, TierUser},
	{"VM.Snapshot", CategoryVM, TierUser},
	{"VM.Backup", CategoryVM, TierUser},
	{"VM.Audit", CategoryVM, TierAudit},

	// Host system control. Root tier is reserved for Administrator.
	{"Sys.PowerMgmt", CategorySys, TierRoot},
	{"Sys.Modify", CategorySys, TierRoot},
	{"Sys.Console", CategorySys, TierRoot},
	{"Sys.Syslog", CategorySys, TierAdmin},
	{"Sys.Audit", CategorySys, TierAudit},

	// Storage.
	{"Datastore.Allocate", CategoryDatastore, TierAdmin},
	{"Datastore.AllocateTemplate", CategoryDatastore, TierAdmin},
	{"Datastore.AllocateSpace", CategoryDatastore, TierUser},
	{"Datastore.Audit", CategoryDatastore, TierAudit},

	// Access-control administration.
	{"Permissions.Modify", CategoryUser, TierRoot},
	{"Realm.Allocate", CategoryUser, TierRoot},
	{"Realm.AllocateUser", CategoryUser, TierAdmin},
	{"User.Modify", CategoryUser, TierAdmin},
	{"Group.Allocate", CategoryUser, TierAdmin},
	{"User.Audit", CategoryUser, TierAudit},

	// Resource pools.
	{"Pool.Allocate", CategoryPool, TierAdmin},
	{"Pool.Audit", CategoryPool, TierAudit},
}

// byToken indexes the catalog for validation.
var byToken = func() map[string]Privilege {
	m := make(map[string]Privilege, len(catalog))
	for _, p := range catalog {
		m[p.Token] = p
	}
	return m
}()

// Valid reports whether token names a known privilege.
func Valid(token string) bool {
	_, ok := byToken[token]
	return ok
}

// All returns every privilege token, sorted.
func All() []string {
	tokens := make([]string, 0, len(catalog))
	for _, p := range catalog {
		tokens = append(tokens, p.Token)
	}
	sort.Strings(tokens)
	return tokens
}

// Categories returns the fixed category list in declaration order.
func Categories() []Category {
	return []Category{CategoryVM, CategorySys, CategoryDatastore, CategoryUser, CategoryPool}
}

// tokens returns the sorted tokens of a category restricted to the given tiers.
func tokens(cat Category, tiers ...Tier) []string {
	want := make(map[Tier]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var out []string
	for _, p := range catalog {
		if p.Category == cat && want[p.Tier] {
			out = append(out, p.Token)
		}
	}
	sort.Strings(out)
	return out
}
