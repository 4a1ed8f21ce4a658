package ports_test

import (
	"testing"

	"github.com/kaamsathi/kaamsathi-api/internal/adapters/authroles"
	mocks "github.com/kaamsathi/kaamsathi-api/internal/mocks/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
)

// This test only verifies that our doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*mocks.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.TokenVerifier = mocks.StaticTokenVerifier(nil)
	var _ ports.RoleMapper = authroles.StaticRoleMapper{}
}
