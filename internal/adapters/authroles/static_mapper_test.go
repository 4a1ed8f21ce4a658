package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
)

func TestStaticRoleMapper_Map(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "ks-admins", EmployerGroup: "ks-employers", WorkerGroup: "ks-workers"}

	tests := []struct {
		name   string
		groups []string
		want   domainauth.Role
	}{
		{"no groups", nil, domainauth.RoleGuest},
		{"unrelated", []string{"staff"}, domainauth.RoleGuest},
		{"worker", []string{"ks-workers"}, domainauth.RoleWorker},
		{"employer beats worker", []string{"ks-workers", "ks-employers"}, domainauth.RoleEmployer},
		{"admin beats all", []string{"ks-employers", "ks-admins"}, domainauth.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.groups))
		})
	}

	assert.Equal(t, domainauth.RoleGuest, StaticRoleMapper{}.Map([]string{""}))
}
