// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/virtstack/access/internal/privilege"
)

// Serialize renders the configuration in the persisted text format. Blocks
// are emitted in a fixed order (users, groups, pools, roles, acl) with every
// collection sorted, so serialization is deterministic. Special roles and
// the super-user's ACL membership are never written; both are regenerated or
// implied on the next load.
func Serialize(cfg *Config) []byte {
	var buf bytes.Buffer

	for _, id := range sortedKeys(cfg.Users) {
		u := cfg.Users[id]
		fmt.Fprintf(&buf, "user:%s:%d:%d:%s:%s:%s:%s:%s:%d:%s:\n",
			u.ID, boolField(u.Enabled), u.Expire,
			EncodeText(u.FirstName), EncodeText(u.LastName),
			EncodeText(u.Email), EncodeText(u.Comment),
			strings.Join(u.Keys, ","),
			boolField(u.MFA), EncodeText(u.MFAAlias))
	}
	buf.WriteByte('\n')

	for _, id := range sortedKeys(cfg.Groups) {
		g := cfg.Groups[id]
		fmt.Fprintf(&buf, "group:%s:%s:%s:\n",
			g.ID, strings.Join(sortedKeys(g.Members), ","), EncodeText(g.Comment))
	}
	buf.WriteByte('\n')

	for _, id := range sortedKeys(cfg.Pools) {
		pool := cfg.Pools[id]
		vmids := make([]int, 0, len(pool.VMs))
		for vmid := range pool.VMs {
			vmids = append(vmids, vmid)
		}
		sort.Ints(vmids)
		vmList := make([]string, len(vmids))
		for i, vmid := range vmids {
			vmList[i] = strconv.Itoa(vmid)
		}
		fmt.Fprintf(&buf, "pool:%s:%s:%s:%s:\n",
			pool.ID, EncodeText(pool.Comment),
			strings.Join(vmList, ","), strings.Join(sortedKeys(pool.Storage), ","))
	}
	buf.WriteByte('\n')

	for _, id := range sortedKeys(cfg.Roles) {
		if privilege.IsSpecialRole(id) {
			continue
		}
		fmt.Fprintf(&buf, "role:%s:%s:\n", id, strings.Join(sortedKeys(cfg.Roles[id]), ","))
	}
	buf.WriteByte('\n')

	for _, path := range sortedKeys(cfg.ACL) {
		writeACL(&buf, path, cfg.ACL[path])
	}

	return buf.Bytes()
}

// writeACL emits the grants at one path. Subjects sharing a propagate flag
// and an identical role set are comma-joined onto one line; non-propagating
// lines come first, then each distinct role set in sorted order.
func writeACL(buf *bytes.Buffer, path string, entry *ACLEntry) {
	// roleset key → subjects, one map per propagate flag
	grouped := map[bool]map[string][]string{
		false: {},
		true:  {},
	}

	collect := func(subject string, grants RoleGrants) {
		byFlag := map[bool][]string{}
		for role, propagate := range grants {
			byFlag[propagate] = append(byFlag[propagate], role)
		}
		for propagate, roles := range byFlag {
			sort.Strings(roles)
			key := strings.Join(roles, ",")
			grouped[propagate][key] = append(grouped[propagate][key], subject)
		}
	}

	for _, user := range sortedKeys(entry.Users) {
		if user == SuperUser {
			continue
		}
		collect(user, entry.Users[user])
	}
	for _, group := range sortedKeys(entry.Groups) {
		collect("@"+group, entry.Groups[group])
	}

	for _, propagate := range []bool{false, true} {
		sets := grouped[propagate]
		keys := make([]string, 0, len(sets))
		for key := range sets {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			subjects := sets[key]
			sort.Strings(subjects)
			fmt.Fprintf(buf, "acl:%d:%s:%s:%s:\n",
				boolField(propagate), path, strings.Join(subjects, ","), key)
		}
	}
}

func boolField(v bool) int {
	if v {
		return 1
	}
	return 0
}

// sortedKeys returns the sorted keys of a string-keyed map.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
