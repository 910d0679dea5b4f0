// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"strings"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/privilege"
)

// Mutators apply administrative changes to one configuration snapshot.
// They are strict where parsing is lenient: an explicit grant naming an
// unknown privilege, role or subject is an error, never a warning.
// All referential cleanup (group membership, ACL grants, pool indexes)
// happens here so a mutated snapshot serializes without dangling references.

// AddUser inserts a new user.
func (c *Config) AddUser(u *User) error {
	if _, _, err := ParseUserID(u.ID); err != nil {
		return err
	}
	if _, exists := c.Users[u.ID]; exists {
		return oops.Code("DUPLICATE_ENTRY").With("userid", u.ID).Errorf("user already exists")
	}
	c.Users[u.ID] = u
	return nil
}

// DeleteUser removes a user together with its group memberships and ACL
// grants.
func (c *Config) DeleteUser(id string) error {
	if _, exists := c.Users[id]; !exists {
		return oops.Code("NOT_FOUND").With("userid", id).Errorf("no such user")
	}
	delete(c.Users, id)
	for _, g := range c.Groups {
		delete(g.Members, id)
	}
	for path, entry := range c.ACL {
		delete(entry.Users, id)
		c.dropEmptyACL(path)
	}
	return nil
}

// AddGroup inserts a new group. Members must exist.
func (c *Config) AddGroup(id, comment string, members []string) error {
	if !ValidIdent(id) {
		return oops.Code("MALFORMED_IDENT").With("group", id).Errorf("invalid group ID")
	}
	if _, exists := c.Groups[id]; exists {
		return oops.Code("DUPLICATE_ENTRY").With("group", id).Errorf("group already exists")
	}
	g := &Group{ID: id, Comment: comment, Members: make(map[string]bool)}
	for _, member := range members {
		if _, exists := c.Users[member]; !exists {
			return oops.Code("NOT_FOUND").With("userid", member).Errorf("no such user")
		}
		g.Members[member] = true
	}
	c.Groups[id] = g
	return nil
}

// DeleteGroup removes a group and its ACL grants.
func (c *Config) DeleteGroup(id string) error {
	if _, exists := c.Groups[id]; !exists {
		return oops.Code("NOT_FOUND").With("group", id).Errorf("no such group")
	}
	delete(c.Groups, id)
	for path, entry := range c.ACL {
		delete(entry.Groups, id)
		c.dropEmptyACL(path)
	}
	return nil
}

// AddRole defines a custom role. Unknown privileges are rejected outright.
func (c *Config) AddRole(id string, privs []string) error {
	if !ValidIdent(id) {
		return oops.Code("MALFORMED_IDENT").With("role", id).Errorf("invalid role ID")
	}
	if privilege.IsSpecialRole(id) {
		return oops.Code("DUPLICATE_ENTRY").With("role", id).Errorf("role is built-in")
	}
	if _, exists := c.Roles[id]; exists {
		return oops.Code("DUPLICATE_ENTRY").With("role", id).Errorf("role already exists")
	}
	set := make(map[string]bool, len(privs))
	for _, token := range privs {
		if !privilege.Valid(token) {
			return oops.Code("MALFORMED_IDENT").With("privilege", token).Errorf("unknown privilege")
		}
		set[token] = true
	}
	c.Roles[id] = set
	return nil
}

// DeleteRole removes a custom role and every ACL grant of it.
func (c *Config) DeleteRole(id string) error {
	if privilege.IsSpecialRole(id) {
		return oops.Code("PERMISSION_DENIED").With("role", id).Errorf("built-in roles cannot be deleted")
	}
	if _, exists := c.Roles[id]; !exists {
		return oops.Code("NOT_FOUND").With("role", id).Errorf("no such role")
	}
	delete(c.Roles, id)
	for path, entry := range c.ACL {
		for subject, grants := range entry.Users {
			delete(grants, id)
			if len(grants) == 0 {
				delete(entry.Users, subject)
			}
		}
		for subject, grants := range entry.Groups {
			delete(grants, id)
			if len(grants) == 0 {
				delete(entry.Groups, subject)
			}
		}
		c.dropEmptyACL(path)
	}
	return nil
}

// Grant assigns a role to a subject ("name@realm" or "@group") at a path.
func (c *Config) Grant(path, subject, role string, propagate bool) error {
	path, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if _, exists := c.Roles[role]; !exists {
		return oops.Code("NOT_FOUND").With("role", role).Errorf("no such role")
	}

	entry := c.ACL[path]
	if entry == nil {
		entry = newACLEntry()
	}
	if group, isGroup := strings.CutPrefix(subject, "@"); isGroup {
		if _, exists := c.Groups[group]; !exists {
			return oops.Code("NOT_FOUND").With("group", group).Errorf("no such group")
		}
		grants := entry.Groups[group]
		if grants == nil {
			grants = make(RoleGrants)
			entry.Groups[group] = grants
		}
		grants[role] = propagate
	} else {
		if subject == SuperUser {
			return oops.Code("PERMISSION_DENIED").Errorf("super-user access is implicit")
		}
		if _, exists := c.Users[subject]; !exists {
			return oops.Code("NOT_FOUND").With("userid", subject).Errorf("no such user")
		}
		grants := entry.Users[subject]
		if grants == nil {
			grants = make(RoleGrants)
			entry.Users[subject] = grants
		}
		grants[role] = propagate
	}
	c.ACL[path] = entry
	return nil
}

// Revoke removes one role grant from a subject at a path.
func (c *Config) Revoke(path, subject, role string) error {
	path, err := NormalizePath(path)
	if err != nil {
		return err
	}
	entry := c.ACL[path]
	if entry == nil {
		return oops.Code("NOT_FOUND").With("path", path).Errorf("no ACL entry at path")
	}
	if group, isGroup := strings.CutPrefix(subject, "@"); isGroup {
		if grants := entry.Groups[group]; grants != nil {
			delete(grants, role)
			if len(grants) == 0 {
				delete(entry.Groups, group)
			}
		}
	} else if grants := entry.Users[subject]; grants != nil {
		delete(grants, role)
		if len(grants) == 0 {
			delete(entry.Users, subject)
		}
	}
	c.dropEmptyACL(path)
	return nil
}

// AddPool creates an empty pool.
func (c *Config) AddPool(id, comment string) error {
	if !ValidIdent(id) {
		return oops.Code("MALFORMED_IDENT").With("pool", id).Errorf("invalid pool ID")
	}
	if _, exists := c.Pools[id]; exists {
		return oops.Code("DUPLICATE_ENTRY").With("pool", id).Errorf("pool already exists")
	}
	c.Pools[id] = &Pool{
		ID:      id,
		Comment: comment,
		VMs:     make(map[int]bool),
		Storage: make(map[string]bool),
	}
	return nil
}

// DeletePool removes a pool and releases its members.
func (c *Config) DeletePool(id string) error {
	pool, exists := c.Pools[id]
	if !exists {
		return oops.Code("NOT_FOUND").With("pool", id).Errorf("no such pool")
	}
	for vmid := range pool.VMs {
		delete(c.VMPool, vmid)
	}
	for sid := range pool.Storage {
		delete(c.StoragePool, sid)
	}
	delete(c.Pools, id)
	return nil
}

// AddPoolVM assigns a VM to a pool. A VM belongs to at most one pool.
func (c *Config) AddPoolVM(poolID string, vmid int) error {
	pool, exists := c.Pools[poolID]
	if !exists {
		return oops.Code("NOT_FOUND").With("pool", poolID).Errorf("no such pool")
	}
	if vmid <= 0 {
		return oops.Code("MALFORMED_IDENT").With("vmid", vmid).Errorf("invalid vmid")
	}
	if owner, taken := c.VMPool[vmid]; taken {
		return oops.Code("DUPLICATE_ENTRY").
			With("vmid", vmid).
			With("pool", owner).
			Errorf("vmid already belongs to a pool")
	}
	pool.VMs[vmid] = true
	c.VMPool[vmid] = poolID
	return nil
}

// AddPoolStorage assigns a storage to a pool, same one-pool rule as VMs.
func (c *Config) AddPoolStorage(poolID, storageID string) error {
	pool, exists := c.Pools[poolID]
	if !exists {
		return oops.Code("NOT_FOUND").With("pool", poolID).Errorf("no such pool")
	}
	if !ValidIdent(storageID) {
		return oops.Code("MALFORMED_IDENT").With("storage", storageID).Errorf("invalid storage ID")
	}
	if owner, taken := c.StoragePool[storageID]; taken {
		return oops.Code("DUPLICATE_ENTRY").
			With("storage", storageID).
			With("pool", owner).
			Errorf("storage already belongs to a pool")
	}
	pool.Storage[storageID] = true
	c.StoragePool[storageID] = poolID
	return nil
}

// RemovePoolMember drops a VM or storage from its pool.
func (c *Config) RemovePoolMember(poolID string, vmid int, storageID string) error {
	pool, exists := c.Pools[poolID]
	if !exists {
		return oops.Code("NOT_FOUND").With("pool", poolID).Errorf("no such pool")
	}
	if vmid > 0 {
		delete(pool.VMs, vmid)
		delete(c.VMPool, vmid)
	}
	if storageID != "" {
		delete(pool.Storage, storageID)
		delete(c.StoragePool, storageID)
	}
	return nil
}

// dropEmptyACL removes a path entry once its last grant is gone, so empty
// entries never survive to serialization.
func (c *Config) dropEmptyACL(path string) {
	if entry := c.ACL[path]; entry != nil && len(entry.Users) == 0 && len(entry.Groups) == 0 {
		delete(c.ACL, path)
	}
}
