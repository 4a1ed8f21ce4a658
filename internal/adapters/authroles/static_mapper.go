// Package authroles maps IdP group membership onto marketplace roles.
package authroles

import (
	"slices"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
)

// StaticRoleMapper maps groups by simple string membership rules. When a
// principal belongs to several groups the most privileged role wins:
// admin, then employer, then worker. No match yields guest.
type StaticRoleMapper struct {
	AdminGroup    string
	EmployerGroup string
	WorkerGroup   string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, rule := range []struct {
		group string
		role  domainauth.Role
	}{
		{m.AdminGroup, domainauth.RoleAdmin},
		{m.EmployerGroup, domainauth.RoleEmployer},
		{m.WorkerGroup, domainauth.RoleWorker},
	} {
		if rule.group != "" && slices.Contains(groups, rule.group) {
			return rule.role
		}
	}
	return domainauth.RoleGuest
}
