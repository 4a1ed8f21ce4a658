package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil/memstore"
)

func newUserFixture(t *testing.T) (*UserService, *memstore.Store) {
	t.Helper()
	store := memstore.New(func() time.Time { return testNow })
	svc, err := NewUserService(UserServiceOptions{Repo: store.Repos().Users})
	require.NoError(t, err)
	return svc, store
}

func TestUserService_UpsertFromIdentity(t *testing.T) {
	ctx := context.Background()
	svc, store := newUserFixture(t)
	identity := domainauth.Identity{UserID: "idp|ravi", FirstName: "Ravi", LastName: "<b>Kumar</b>", Email: "ravi@example.com"}

	u, err := svc.UpsertFromIdentity(ctx, identity, domainauth.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeWorker, u.Type)
	assert.Equal(t, "Ravi Kumar", u.Name)
	require.NotNil(t, u.LastLoginAt)

	again, err := svc.UpsertFromIdentity(ctx, identity, domainauth.RoleEmployer)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, model.UserTypeWorker, again.Type, "account type is fixed at creation")

	_, err = svc.UpsertFromIdentity(ctx, domainauth.Identity{UserID: "idp|x"}, domainauth.RoleGuest)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = store.Repos().Users.SetBlocked(ctx, u.ID, true)
	require.NoError(t, err)
	_, err = svc.UpsertFromIdentity(ctx, identity, domainauth.RoleWorker)
	assert.ErrorIs(t, err, core.ErrAccountBlocked)
}

func TestUserService_Active(t *testing.T) {
	ctx := context.Background()
	svc, store := newUserFixture(t)
	id := store.SeedUser(model.UserTypeWorker, "Ravi")

	u, err := svc.Active(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = svc.Active(ctx, workerID)
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = store.Repos().Users.SetBlocked(ctx, id, true)
	require.NoError(t, err)
	_, err = svc.Active(ctx, id)
	assert.ErrorIs(t, err, core.ErrAccountBlocked)
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, store := newUserFixture(t)
	worker := domainauth.Caller{UserID: store.SeedUser(model.UserTypeWorker, "Ravi"), Role: domainauth.RoleWorker}
	employer := domainauth.Caller{UserID: store.SeedUser(model.UserTypeEmployer, "Asha"), Role: domainauth.RoleEmployer}

	tests := []struct {
		name    string
		caller  domainauth.Caller
		req     *model.UpdateProfileRequest
		wantErr bool
	}{
		{
			name:   "worker edits skills",
			caller: worker,
			req: &model.UpdateProfileRequest{WorkerProfile: &model.WorkerProfile{
				Skills: []string{"<em>masonry</em>", "tiling"}, ExperienceYears: 4,
			}},
		},
		{
			name:    "worker cannot set employer profile",
			caller:  worker,
			req:     &model.UpdateProfileRequest{EmployerProfile: &model.EmployerProfile{CompanyName: "X"}},
			wantErr: true,
		},
		{
			name:    "empty request",
			caller:  employer,
			req:     &model.UpdateProfileRequest{},
			wantErr: true,
		},
		{
			name:    "bad phone",
			caller:  employer,
			req:     &model.UpdateProfileRequest{Phone: strPtr("12ab")},
			wantErr: true,
		},
		{
			name:   "employer company",
			caller: employer,
			req:    &model.UpdateProfileRequest{EmployerProfile: &model.EmployerProfile{CompanyName: "Asha Builders"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.UpdateProfile(ctx, tt.caller, tt.req)
			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.caller.UserID, u.ID)
		})
	}

	me, err := svc.GetMe(ctx, worker)
	require.NoError(t, err)
	require.NotNil(t, me.WorkerProfile)
	assert.Equal(t, []string{"masonry", "tiling"}, me.WorkerProfile.Skills)

	_, err = svc.GetMe(ctx, domainauth.Caller{})
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestUserService_SetBlocked(t *testing.T) {
	ctx := context.Background()
	svc, store := newUserFixture(t)
	admin := domainauth.Caller{UserID: store.SeedUser(model.UserTypeAdmin, "Root"), Role: domainauth.RoleAdmin}
	ravi := store.SeedUser(model.UserTypeWorker, "Ravi")

	_, err := svc.SetBlocked(ctx, workerCaller(), ravi, true)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = svc.SetBlocked(ctx, admin, admin.UserID, true)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.SetBlocked(ctx, admin, "nope", true)
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	u, err := svc.SetBlocked(ctx, admin, ravi, true)
	require.NoError(t, err)
	assert.True(t, u.IsBlocked)
	assert.False(t, u.CanSignIn())

	u, err = svc.SetBlocked(ctx, admin, ravi, false)
	require.NoError(t, err)
	assert.True(t, u.CanSignIn())
}

func strPtr(s string) *string { return &s }
