package devseed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaamsathi/kaamsathi-api/config"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil/memstore"
)

func TestRun_IsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(func() time.Time { return time.Now().UTC() })
	repos := store.Repos()

	users, err := service.NewUserService(service.UserServiceOptions{Repo: repos.Users})
	require.NoError(t, err)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Tx:     store,
		Repo:   repos.Jobs,
		Config: config.MarketplaceConfig{DefaultJobLifetime: 720 * time.Hour, DefaultMaxApplicants: 50},
	})
	require.NoError(t, err)

	svcs := NewServicesWith(users, jobs)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Run(ctx, svcs, logger))
	require.NoError(t, Run(ctx, svcs, logger))

	employer, err := users.UpsertFromIdentity(ctx, DefaultAccounts()[0].Identity, domainauth.RoleEmployer)
	require.NoError(t, err)
	mine, err := jobs.ListMine(ctx,
		domainauth.Caller{UserID: employer.ID, Role: domainauth.RoleEmployer},
		model.JobSearchOptions{},
		model.Page{Page: 1, Limit: 50},
	)
	require.NoError(t, err)
	assert.Len(t, mine.Items, len(DefaultJobs()), "second run must not duplicate jobs")
}

func TestDefaultJobsAreValid(t *testing.T) {
	for _, req := range DefaultJobs() {
		assert.NoError(t, req.Validate(), req.Title)
	}
}
