// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/virtstack/access/internal/privilege"
)

// Parse builds a Config from persisted bytes. It never fails: malformed
// lines, identifiers and member references are skipped and reported as
// Warnings, and the returned Config always carries the regenerated special
// role set. Records are processed in file order; the serializer emits blocks
// as users, groups, pools, roles, acl, so forward references between blocks
// resolve in a single pass.
func Parse(data []byte) (*Config, []Warning) {
	p := &parser{cfg: NewConfig()}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.parseLine(line)
	}
	if err := scanner.Err(); err != nil {
		// Oversized or unreadable remainder: keep what parsed so far.
		p.warnf("stopped reading configuration: %v", err)
	}

	return p.cfg, p.warnings
}

type parser struct {
	cfg      *Config
	lineno   int
	warnings []Warning
}

func (p *parser) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, Warning{Line: p.lineno, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) parseLine(line string) {
	fields := strings.Split(line, ":")
	switch fields[0] {
	case "user":
		p.parseUser(fields)
	case "group":
		p.parseGroup(fields)
	case "pool":
		p.parsePool(fields)
	case "role":
		p.parseRole(fields)
	case "acl":
		p.parseACL(fields)
	default:
		p.warnf("unknown record type %q, line skipped", fields[0])
	}
}

// field returns fields[i] or "" when the record is shorter than the full
// grammar. Old configurations lack trailing fields; that is not an error.
func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// user:<id>:<enabled 0|1>:<expire-epoch>:<firstname>:<lastname>:<email>:<comment>:<keys>:<mfa 0|1>:<mfa-alias>:
func (p *parser) parseUser(fields []string) {
	if len(fields) < 4 {
		p.warnf("truncated user record, line skipped")
		return
	}
	id := fields[1]
	if !ValidUserID(id) {
		p.warnf("invalid user ID %q, line skipped", id)
		return
	}
	if _, dup := p.cfg.Users[id]; dup {
		p.warnf("duplicate user %q, line skipped", id)
		return
	}
	enabled, ok := parseBoolField(fields[2])
	if !ok {
		p.warnf("user %q: invalid enabled flag %q, line skipped", id, fields[2])
		return
	}
	expire, ok := parseEpochField(fields[3])
	if !ok {
		p.warnf("user %q: invalid expiry %q, line skipped", id, fields[3])
		return
	}
	mfa, ok := parseBoolField(field(fields, 9))
	if !ok {
		p.warnf("user %q: invalid mfa flag %q, line skipped", id, field(fields, 9))
		return
	}

	p.cfg.Users[id] = &User{
		ID:        id,
		Enabled:   enabled,
		Expire:    expire,
		FirstName: DecodeText(field(fields, 4)),
		LastName:  DecodeText(field(fields, 5)),
		Email:     DecodeText(field(fields, 6)),
		Comment:   DecodeText(field(fields, 7)),
		Keys:      splitList(field(fields, 8)),
		MFA:       mfa,
		MFAAlias:  DecodeText(field(fields, 10)),
	}
}

// group:<id>:<comma-user-list>:<comment>:
func (p *parser) parseGroup(fields []string) {
	if len(fields) < 3 {
		p.warnf("truncated group record, line skipped")
		return
	}
	id := fields[1]
	if !ValidIdent(id) {
		p.warnf("invalid group ID %q, line skipped", id)
		return
	}
	if _, dup := p.cfg.Groups[id]; dup {
		p.warnf("duplicate group %q, line skipped", id)
		return
	}
	g := &Group{
		ID:      id,
		Comment: DecodeText(field(fields, 3)),
		Members: make(map[string]bool),
	}
	for _, member := range splitList(fields[2]) {
		if !ValidUserID(member) {
			p.warnf("group %q: invalid member %q dropped", id, member)
			continue
		}
		if _, exists := p.cfg.Users[member]; !exists {
			p.warnf("group %q: unknown member %q dropped", id, member)
			continue
		}
		g.Members[member] = true
	}
	p.cfg.Groups[id] = g
}

// pool:<id>:<comment>:<comma-vmid-list>:<comma-storeid-list>:
func (p *parser) parsePool(fields []string) {
	if len(fields) < 3 {
		p.warnf("truncated pool record, line skipped")
		return
	}
	id := fields[1]
	if !ValidIdent(id) {
		p.warnf("invalid pool ID %q, line skipped", id)
		return
	}
	if _, dup := p.cfg.Pools[id]; dup {
		p.warnf("duplicate pool %q, line skipped", id)
		return
	}
	pool := &Pool{
		ID:      id,
		Comment: DecodeText(fields[2]),
		VMs:     make(map[int]bool),
		Storage: make(map[string]bool),
	}
	for _, raw := range splitList(field(fields, 3)) {
		vmid, err := strconv.Atoi(raw)
		if err != nil || vmid <= 0 {
			p.warnf("pool %q: invalid vmid %q dropped", id, raw)
			continue
		}
		if owner, taken := p.cfg.VMPool[vmid]; taken {
			p.warnf("pool %q: vmid %d already in pool %q, dropped", id, vmid, owner)
			continue
		}
		pool.VMs[vmid] = true
		p.cfg.VMPool[vmid] = id
	}
	for _, sid := range splitList(field(fields, 4)) {
		if !ValidIdent(sid) {
			p.warnf("pool %q: invalid storage ID %q dropped", id, sid)
			continue
		}
		if owner, taken := p.cfg.StoragePool[sid]; taken {
			p.warnf("pool %q: storage %q already in pool %q, dropped", id, sid, owner)
			continue
		}
		pool.Storage[sid] = true
		p.cfg.StoragePool[sid] = id
	}
	p.cfg.Pools[id] = pool
}

// role:<id>:<comma-priv-list>:
func (p *parser) parseRole(fields []string) {
	if len(fields) < 3 {
		p.warnf("truncated role record, line skipped")
		return
	}
	id := fields[1]
	if !ValidIdent(id) {
		p.warnf("invalid role ID %q, line skipped", id)
		return
	}
	if privilege.IsSpecialRole(id) {
		p.warnf("role %q is built-in and cannot be redefined, line skipped", id)
		return
	}
	if _, dup := p.cfg.Roles[id]; dup {
		p.warnf("duplicate role %q, line skipped", id)
		return
	}
	privs := make(map[string]bool)
	for _, token := range splitList(fields[2]) {
		if !privilege.Valid(token) {
			p.warnf("role %q: unknown privilege %q dropped", id, token)
			continue
		}
		privs[token] = true
	}
	p.cfg.Roles[id] = privs
}

// acl:<propagate 0|1>:<path>:<comma-subject-list>:<comma-role-list>:
func (p *parser) parseACL(fields []string) {
	if len(fields) < 5 {
		p.warnf("truncated acl record, line skipped")
		return
	}
	propagate, ok := parseBoolField(fields[1])
	if !ok {
		p.warnf("acl: invalid propagate flag %q, line skipped", fields[1])
		return
	}
	path, err := NormalizePath(fields[2])
	if err != nil {
		p.warnf("acl: invalid path %q, line skipped", fields[2])
		return
	}

	var roles []string
	for _, role := range splitList(fields[4]) {
		if _, exists := p.cfg.Roles[role]; !exists {
			p.warnf("acl %q: unknown role %q dropped", path, role)
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		p.warnf("acl %q: no usable roles, line skipped", path)
		return
	}

	for _, subject := range splitList(fields[3]) {
		if group, isGroup := strings.CutPrefix(subject, "@"); isGroup {
			if _, exists := p.cfg.Groups[group]; !exists {
				p.warnf("acl %q: unknown group %q dropped", path, group)
				continue
			}
			p.grant(path, subject, roles, propagate)
			continue
		}
		if !ValidUserID(subject) {
			p.warnf("acl %q: invalid subject %q dropped", path, subject)
			continue
		}
		if subject == SuperUser {
			// The super-user's access is implicit; grants for it are
			// neither stored nor honored.
			continue
		}
		if _, exists := p.cfg.Users[subject]; !exists {
			p.warnf("acl %q: unknown user %q dropped", path, subject)
			continue
		}
		p.grant(path, subject, roles, propagate)
	}
}

// grant records roles for one subject, allocating the path entry on first
// use. Later records override the propagate flag of earlier ones.
func (p *parser) grant(path, subject string, roles []string, propagate bool) {
	entry := p.cfg.ACL[path]
	if entry == nil {
		entry = newACLEntry()
		p.cfg.ACL[path] = entry
	}
	target := entry.Users
	key := subject
	if group, isGroup := strings.CutPrefix(subject, "@"); isGroup {
		target = entry.Groups
		key = group
	}
	grants := target[key]
	if grants == nil {
		grants = make(RoleGrants)
		target[key] = grants
	}
	for _, role := range roles {
		grants[role] = propagate
	}
}

// splitList splits a comma-joined list, dropping empty elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseBoolField accepts the 0|1 flags of the persisted format. The empty
// string means false so that truncated old records still parse.
func parseBoolField(s string) (value, ok bool) {
	switch s {
	case "", "0":
		return false, true
	case "1":
		return true, true
	default:
		return false, false
	}
}

// parseEpochField accepts a non-negative epoch second, empty meaning never.
func parseEpochField(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
