// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeBlockOrder(t *testing.T) {
	cfg, warnings := Parse([]byte(sampleConfig))
	require.Empty(t, warnings)

	out := string(Serialize(cfg))

	// Fixed block order: users, groups, pools, roles, acl.
	idxUser := strings.Index(out, "user:")
	idxGroup := strings.Index(out, "group:")
	idxPool := strings.Index(out, "pool:")
	idxRole := strings.Index(out, "role:")
	idxACL := strings.Index(out, "acl:")
	assert.True(t, idxUser < idxGroup, "users before groups")
	assert.True(t, idxGroup < idxPool, "groups before pools")
	assert.True(t, idxPool < idxRole, "pools before roles")
	assert.True(t, idxRole < idxACL, "roles before acl")
}

func TestSerializeOmitsSpecialRoles(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.AddRole("Custom", []string{"VM.Audit"}))

	out := string(Serialize(cfg))
	assert.Contains(t, out, "role:Custom:VM.Audit:\n")
	assert.NotContains(t, out, "role:Administrator")
	assert.NotContains(t, out, "role:NoAccess")
	assert.NotContains(t, out, "role:PVEAdmin")
}

func TestSerializeOmitsSuperUserGrants(t *testing.T) {
	cfg := NewConfig()
	// Simulate an in-memory grant for the super-user; it must never be
	// persisted.
	entry := newACLEntry()
	entry.Users[SuperUser] = RoleGrants{"Administrator": true}
	cfg.ACL["/"] = entry

	assert.NotContains(t, string(Serialize(cfg)), SuperUser)
}

func TestSerializeGroupsSubjectsByRoleSet(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.AddUser(&User{ID: "a@vs", Enabled: true}))
	require.NoError(t, cfg.AddUser(&User{ID: "b@vs", Enabled: true}))
	require.NoError(t, cfg.AddRole("R", []string{"VM.Audit"}))
	require.NoError(t, cfg.Grant("/vms", "a@vs", "R", true))
	require.NoError(t, cfg.Grant("/vms", "b@vs", "R", true))

	out := string(Serialize(cfg))
	assert.Contains(t, out, "acl:1:/vms:a@vs,b@vs:R:\n", "subjects sharing a role set share a line")
}

// Round-trip: parse(serialize(c)) equals c, special roles regenerated.
func TestSerializeParseRoundTrip(t *testing.T) {
	original, warnings := Parse([]byte(sampleConfig))
	require.Empty(t, warnings)

	reparsed, warnings := Parse(Serialize(original))
	require.Empty(t, warnings)

	assert.Equal(t, original.Users, reparsed.Users)
	assert.Equal(t, original.Groups, reparsed.Groups)
	assert.Equal(t, original.Roles, reparsed.Roles)
	assert.Equal(t, original.ACL, reparsed.ACL)
	assert.Equal(t, original.Pools, reparsed.Pools)
	assert.Equal(t, original.VMPool, reparsed.VMPool)
	assert.Equal(t, original.StoragePool, reparsed.StoragePool)
}

func TestSerializeDeterministic(t *testing.T) {
	cfg, _ := Parse([]byte(sampleConfig))
	first := Serialize(cfg)
	for range 5 {
		assert.Equal(t, first, Serialize(cfg))
	}
}

func TestSerializeEscapesFreeText(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.AddUser(&User{
		ID:      "alice@vs",
		Enabled: true,
		Comment: "50%: a,b\nc",
	}))

	out := Serialize(cfg)
	reparsed, warnings := Parse(out)
	require.Empty(t, warnings)
	assert.Equal(t, "50%: a,b\nc", reparsed.Users["alice@vs"].Comment)
}
