package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil"
)

func TestUserRepo_Upsert_Get_Update_Block(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewUserRepoWithTimeProvider(db, tp)

		u, err := repo.Upsert(ctx, &model.UpsertUserRequest{
			ExternalID: "oidc|ravi",
			Type:       model.UserTypeWorker,
			Name:       " Ravi Kumar ",
			Email:      "ravi@example.com",
		})
		require.NoError(t, err)
		require.NotEmpty(t, u.ID)
		assert.Equal(t, "Ravi Kumar", u.Name)
		assert.Equal(t, model.UserTypeWorker, u.Type)
		assert.True(t, u.CanSignIn())
		require.NotNil(t, u.LastLoginAt)

		// second login keeps type and name, refreshes last_login_at
		tp.Advance(time.Hour)
		again, err := repo.Upsert(ctx, &model.UpsertUserRequest{
			ExternalID: "oidc|ravi",
			Type:       model.UserTypeEmployer,
			Name:       "Someone Else",
		})
		require.NoError(t, err)
		assert.Equal(t, u.ID, again.ID)
		assert.Equal(t, model.UserTypeWorker, again.Type)
		assert.Equal(t, "Ravi Kumar", again.Name)
		assert.True(t, again.LastLoginAt.After(*u.LastLoginAt))

		byExt, err := repo.GetByExternalID(ctx, "oidc|ravi")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byExt.ID)

		rate := int64(700)
		updated, err := repo.UpdateProfile(ctx, u.ID, model.UpdateProfileRequest{
			Phone: testutil.Ptr("9876543210"),
			WorkerProfile: &model.WorkerProfile{
				Skills:          []string{"masonry"},
				ExperienceYears: 4,
				DailyRate:       &rate,
			},
		})
		require.NoError(t, err)
		require.NotNil(t, updated.WorkerProfile)
		assert.Equal(t, []string{"masonry"}, updated.WorkerProfile.Skills)
		assert.Equal(t, "9876543210", *updated.Phone)

		blocked, err := repo.SetBlocked(ctx, u.ID, true)
		require.NoError(t, err)
		assert.False(t, blocked.CanSignIn())

		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, core.ErrUserNotFound)
	})
}
