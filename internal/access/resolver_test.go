// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtstack/access/internal/usercfg"
	"github.com/virtstack/access/pkg/errutil"
)

// buildConfig assembles a snapshot from parsed text so the tests exercise
// the same data the persisted format produces.
func buildConfig(t *testing.T, text string) *usercfg.Config {
	t.Helper()
	cfg, warnings := usercfg.Parse([]byte(text))
	require.Empty(t, warnings, "fixture must parse cleanly")
	return cfg
}

func TestResolveRolesSuperUser(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Nothing::
acl:1:/:alice@vs:Nothing:
`)
	// ACL content is irrelevant for the super-user.
	roles := ResolveRoles(cfg, "root@pam", "/vms/100")
	assert.Equal(t, map[string]bool{"Administrator": true}, roles)
}

func TestResolveRolesUserGrantShadowsGroups(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
group:ops:alice@vs::
role:GroupRole:VM.PowerMgmt:
role:UserRole:VM.Console:
acl:1:/vms:@ops:GroupRole:
acl:1:/vms:alice@vs:UserRole:
`)
	roles := ResolveRoles(cfg, "alice@vs", "/vms/100")
	assert.Equal(t, map[string]bool{"UserRole": true},
		roles, "user grant replaces the group grant at the same key")
}

func TestResolveRolesLastLexicographicKeyWins(t *testing.T) {
	// Both keys match /vms/100; "/vms/100" sorts after "/vms". The later
	// key replaces the accumulator outright even though the earlier one
	// came from a user-specific grant.
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
group:ops:alice@vs::
role:Broad:VM.PowerMgmt:
role:Narrow:VM.Audit:
acl:1:/vms:alice@vs:Broad:
acl:1:/vms/100:@ops:Narrow:
`)
	roles := ResolveRoles(cfg, "alice@vs", "/vms/100")
	assert.Equal(t, map[string]bool{"Narrow": true}, roles)
}

func TestResolveRolesNoAccessCollapse(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Operator:VM.Console,VM.PowerMgmt:
acl:1:/vms:alice@vs:Operator:
acl:1:/vms/100:alice@vs:NoAccess,Operator:
`)
	roles := ResolveRoles(cfg, "alice@vs", "/vms/100")
	assert.Equal(t, map[string]bool{"NoAccess": true}, roles,
		"NoAccess masks everything else in the winning accumulator")

	privs := ResolvePrivileges(cfg, "alice@vs", "/vms/100")
	assert.Empty(t, privs)
}

func TestResolveRolesPropagation(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Operator:VM.Console:
acl:0:/vms/100:alice@vs:Operator:
`)
	t.Run("grant applies at its own path", func(t *testing.T) {
		privs := ResolvePrivileges(cfg, "alice@vs", "/vms/100")
		assert.Equal(t, map[string]bool{"VM.Console": true}, privs)
	})
	t.Run("non-propagating grant stops at descendants", func(t *testing.T) {
		privs := ResolvePrivileges(cfg, "alice@vs", "/vms/100/disk")
		assert.Empty(t, privs)
	})
}

func TestResolveRolesRootKeyMatchesEverything(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Auditor:VM.Audit:
acl:1:/:alice@vs:Auditor:
`)
	for _, path := range []string{"/", "/vms", "/vms/100/disk", "/storage/ceph-a"} {
		roles := ResolveRoles(cfg, "alice@vs", path)
		assert.Equal(t, map[string]bool{"Auditor": true}, roles, "path %s", path)
	}
}

func TestResolveRolesPrefixMatchIsPathAware(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Operator:VM.Console:
acl:1:/vms/10:alice@vs:Operator:
`)
	// "/vms/10" is a string prefix of "/vms/100" but not a path ancestor.
	assert.Empty(t, ResolveRoles(cfg, "alice@vs", "/vms/100"))
	assert.NotEmpty(t, ResolveRoles(cfg, "alice@vs", "/vms/10/disk"))
}

func TestResolveRolesGroupUnionAcrossGroups(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
group:ops:alice@vs::
group:audit:alice@vs::
role:Operator:VM.Console:
role:Auditor:VM.Audit:
acl:1:/vms:@ops:Operator:
acl:1:/vms:@audit:Auditor:
`)
	roles := ResolveRoles(cfg, "alice@vs", "/vms")
	assert.Equal(t, map[string]bool{"Operator": true, "Auditor": true}, roles,
		"grants union across groups at one key")
}

func TestCheck(t *testing.T) {
	cfg := buildConfig(t, `
user:alice@vs:1:0:::::::
role:Operator:VM.Console,VM.PowerMgmt:
acl:0:/vms/100:alice@vs:Operator:
`)
	tests := []struct {
		name     string
		user     string
		path     string
		required []string
		allowed  bool
	}{
		{"single privilege", "alice@vs", "/vms/100", []string{"VM.Console"}, true},
		{"all required privileges", "alice@vs", "/vms/100", []string{"VM.Console", "VM.PowerMgmt"}, true},
		{"one missing privilege", "alice@vs", "/vms/100", []string{"VM.Console", "VM.Allocate"}, false},
		{"empty requirement denied", "alice@vs", "/vms/100", nil, false},
		{"unnormalized path", "alice@vs", "//vms//100/", []string{"VM.Console"}, true},
		{"super-user", "root@pam", "/anything", []string{"VM.Allocate"}, true},
		{"unknown user", "ghost@vs", "/vms/100", []string{"VM.Console"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := Check(cfg, tt.user, tt.path, tt.required...)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}

	t.Run("malformed path", func(t *testing.T) {
		_, err := Check(cfg, "alice@vs", "not a path", "VM.Console")
		errutil.AssertErrorCode(t, err, "MALFORMED_PATH")
	})
}
