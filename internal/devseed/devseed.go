// Package devseed populates a development database with a few marketplace accounts and jobs.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	users *service.UserService
	jobs  *service.JobService
}

// NewServices constructs all required services for seeding using the provided DB.
// Seeding never touches Redis, so job caching stays disabled.
func NewServices(db *sql.DB, marketplace config.MarketplaceConfig) (Services, error) {
	users, err := service.NewUserService(service.UserServiceOptions{Repo: data.NewUserRepo(db)})
	if err != nil {
		return Services{}, err
	}
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Tx:     data.NewTxManager(db),
		Repo:   data.NewJobRepo(db),
		Config: marketplace,
	})
	if err != nil {
		return Services{}, err
	}
	return Services{users: users, jobs: jobs}, nil
}

// NewServicesWith builds seeding services from already wired ones.
func NewServicesWith(users *service.UserService, jobs *service.JobService) Services {
	return Services{users: users, jobs: jobs}
}

// Account is a seeded marketplace identity.
type Account struct {
	Identity domainauth.Identity
	Role     domainauth.Role
}

// DefaultAccounts returns the seeded identities. Their subjects match the
// dev auth defaults so mock logins land on seeded data.
func DefaultAccounts() []Account {
	return []Account{
		{
			Identity: domainauth.Identity{UserID: "dev-employer", FirstName: "Sunita", LastName: "Builders", Email: "employer@kaamsathi.dev", Phone: "+919800000001"},
			Role:     domainauth.RoleEmployer,
		},
		{
			Identity: domainauth.Identity{UserID: "dev-user", FirstName: "Ravi", LastName: "Kumar", Email: "dev@example.com", Phone: "+919800000002"},
			Role:     domainauth.RoleWorker,
		},
		{
			Identity: domainauth.Identity{UserID: "dev-admin", FirstName: "Asha", LastName: "Admin", Email: "admin@kaamsathi.dev"},
			Role:     domainauth.RoleAdmin,
		},
	}
}

// DefaultJobs returns the job postings created for the seeded employer.
func DefaultJobs() []*model.CreateJobRequest {
	addr := "Plot 14, Hinjewadi Phase 2"
	return []*model.CreateJobRequest{
		{
			Title:         "Site helper for residential build",
			Description:   "Carry material, mix concrete and keep the site clean. Meals provided.",
			Category:      model.JobCategoryConstruction,
			JobType:       model.JobTypeDailyWage,
			SalaryMin:     700,
			SalaryMax:     900,
			SalaryPeriod:  model.SalaryPeriodDaily,
			LocationCity:  "Pune",
			LocationState: "Maharashtra",
			Requirements:  model.JobRequirements{Skills: []string{"lifting", "masonry basics"}, Languages: []string{"Hindi", "Marathi"}},
			MaxApplicants: 10,
			IsUrgent:      true,
		},
		{
			Title:           "Office cleaner, morning shift",
			Description:     "Daily cleaning of a two floor office before 10am.",
			Category:        model.JobCategoryCleaning,
			JobType:         model.JobTypePartTime,
			SalaryMin:       9000,
			SalaryMax:       11000,
			SalaryPeriod:    model.SalaryPeriodMonthly,
			LocationCity:    "Pune",
			LocationState:   "Maharashtra",
			LocationAddress: &addr,
			MaxApplicants:   5,
		},
		{
			Title:         "Two wheeler delivery rider",
			Description:   "Deliver groceries within 5 km. Own bike and licence required.",
			Category:      model.JobCategoryDelivery,
			JobType:       model.JobTypeFullTime,
			SalaryMin:     18000,
			SalaryMax:     24000,
			SalaryPeriod:  model.SalaryPeriodMonthly,
			LocationCity:  "Mumbai",
			LocationState: "Maharashtra",
			Requirements:  model.JobRequirements{Skills: []string{"two wheeler licence"}, ExperienceYears: 1},
		},
	}
}

// Run executes the full development seeding workflow. Re-running it is safe:
// accounts are upserted and jobs already posted under the same title are skipped.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var employer *model.User
	for _, acct := range DefaultAccounts() {
		u, err := svcs.users.UpsertFromIdentity(ctx, acct.Identity, acct.Role)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", acct.Identity.UserID, err)
		}
		logger.InfoContext(ctx, "seeded account", "user_id", u.ID, "role", acct.Role)
		if acct.Role == domainauth.RoleEmployer && employer == nil {
			employer = u
		}
	}
	if employer == nil {
		return errors.New("no employer account seeded")
	}

	caller := domainauth.Caller{UserID: employer.ID, Role: domainauth.RoleEmployer}
	existing, err := existingTitles(ctx, svcs.jobs, caller)
	if err != nil {
		return err
	}

	failures := 0
	for _, req := range DefaultJobs() {
		if existing[req.Title] {
			logger.DebugContext(ctx, "job already seeded", "title", req.Title)
			continue
		}
		job, createErr := svcs.jobs.Create(ctx, caller, req)
		if createErr != nil {
			failures++
			logger.WarnContext(ctx, "failed to seed job", "title", req.Title, "error", createErr)
			continue
		}
		logger.InfoContext(ctx, "seeded job", "job_id", job.ID, "title", job.Title)
	}
	if failures > 0 {
		return fmt.Errorf("%d job seeds failed", failures)
	}
	return nil
}

func existingTitles(ctx context.Context, jobs *service.JobService, caller domainauth.Caller) (map[string]bool, error) {
	res, err := jobs.ListMine(ctx, caller, model.JobSearchOptions{}, model.Page{Page: 1, Limit: model.MaxPageLimit}.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list seeded jobs: %w", err)
	}
	titles := make(map[string]bool, len(res.Items))
	for _, j := range res.Items {
		titles[j.Title] = true
	}
	return titles, nil
}
