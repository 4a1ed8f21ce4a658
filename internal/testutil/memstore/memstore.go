// Package memstore is an in-memory implementation of the core repository
// ports for service-level scenario tests. WithinTx holds a store-wide lock and
// restores a snapshot when fn fails, so rollback behaves like the database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

type savedKey struct{ userID, jobID string }

type state struct {
	users         map[string]model.User
	jobs          map[string]model.Job
	apps          map[string]model.Application
	history       map[string][]model.StatusHistoryEntry
	appMessages   map[string][]model.ApplicationMessage
	notifications []model.Notification
	messages      []model.Message
	saved         map[savedKey]time.Time
	deliveries    map[string]delivery
	historySeq    int64
}

// delivery tracks webhook retries for one notification.
type delivery struct {
	attempts int
	next     time.Time
	dead     bool
}

func newState() state {
	return state{
		users:       map[string]model.User{},
		jobs:        map[string]model.Job{},
		apps:        map[string]model.Application{},
		history:     map[string][]model.StatusHistoryEntry{},
		appMessages: map[string][]model.ApplicationMessage{},
		saved:       map[savedKey]time.Time{},
		deliveries:  map[string]delivery{},
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.jobs {
		out.jobs[k] = v
	}
	for k, v := range s.apps {
		out.apps[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]model.StatusHistoryEntry(nil), v...)
	}
	for k, v := range s.appMessages {
		out.appMessages[k] = append([]model.ApplicationMessage(nil), v...)
	}
	for k, v := range s.saved {
		out.saved[k] = v
	}
	for k, v := range s.deliveries {
		out.deliveries[k] = v
	}
	out.notifications = append([]model.Notification(nil), s.notifications...)
	out.messages = append([]model.Message(nil), s.messages...)
	out.historySeq = s.historySeq
	return out
}

// Store holds every table in memory.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

// New returns an empty store. now defaults to time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{st: newState(), now: func() time.Time { return now().UTC() }}
}

var _ core.UnitOfWork = (*Store)(nil)

// WithinTx runs fn with repositories bound to the locked store.
func (s *Store) WithinTx(ctx context.Context, fn func(core.TxRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(s.bind(true)); err != nil {
		s.st = snapshot
		return err
	}
	return ctx.Err()
}

// Repos returns repositories that lock per call.
func (s *Store) Repos() core.TxRepositories { return s.bind(false) }

func (s *Store) bind(inTx bool) core.TxRepositories {
	b := &binding{s: s, inTx: inTx}
	return core.TxRepositories{
		Users:         &Users{b},
		Jobs:          &Jobs{b},
		Applications:  &Applications{b},
		Notifications: &Notifications{b},
		Messages:      &Messages{b},
	}
}

type binding struct {
	s    *Store
	inTx bool
}

func (b *binding) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

func (b *binding) state() *state { return &b.s.st }

func newID() string { return uuid.NewString() }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SeedUser inserts a user and returns its id.
func (s *Store) SeedUser(t model.UserType, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u := model.User{
		ID: newID(), ExternalID: "ext-" + name, Type: t, Name: name,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	s.st.users[u.ID] = u
	return u.ID
}

// Job returns a copy of the stored job.
func (s *Store) Job(id string) model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.jobs[id]
}

// Applications returns a copy of every stored application.
func (s *Store) Applications() []model.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Application, 0, len(s.st.apps))
	for _, a := range s.st.apps {
		out = append(out, a)
	}
	return out
}

// History returns the stored history of an application.
func (s *Store) History(appID string) []model.StatusHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StatusHistoryEntry(nil), s.st.history[appID]...)
}

// NotificationsFor returns every notification addressed to recipientID.
func (s *Store) NotificationsFor(recipientID string) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.st.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

// Users implements core.UserRepository.
type Users struct{ b *binding }

var _ core.UserRepository = (*Users)(nil)

func (r *Users) Upsert(_ context.Context, req *model.UpsertUserRequest) (*model.User, error) {
	defer r.b.lock()()
	st := r.b.state()
	now := r.b.s.now()
	for id, u := range st.users {
		if u.ExternalID == req.ExternalID {
			u.LastLoginAt = &now
			u.UpdatedAt = now
			st.users[id] = u
			return &u, nil
		}
	}
	u := model.User{
		ID: newID(), ExternalID: req.ExternalID, Type: req.Type, Name: req.Name,
		IsActive: true, LastLoginAt: &now, CreatedAt: now, UpdatedAt: now,
	}
	if req.Email != "" {
		email := req.Email
		u.Email = &email
	}
	st.users[u.ID] = u
	return &u, nil
}

func (r *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	defer r.b.lock()()
	u, ok := r.b.state().users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &u, nil
}

func (r *Users) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	defer r.b.lock()()
	for _, u := range r.b.state().users {
		if u.ExternalID == externalID {
			return &u, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (r *Users) UpdateProfile(_ context.Context, id string, req model.UpdateProfileRequest) (*model.User, error) {
	defer r.b.lock()()
	st := r.b.state()
	u, ok := st.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = req.Email
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.WorkerProfile != nil {
		u.WorkerProfile = req.WorkerProfile
	}
	if req.EmployerProfile != nil {
		u.EmployerProfile = req.EmployerProfile
	}
	u.UpdatedAt = r.b.s.now()
	st.users[id] = u
	return &u, nil
}

func (r *Users) SetBlocked(_ context.Context, id string, blocked bool) (*model.User, error) {
	defer r.b.lock()()
	st := r.b.state()
	u, ok := st.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	u.IsBlocked = blocked
	u.UpdatedAt = r.b.s.now()
	st.users[id] = u
	return &u, nil
}

// Jobs implements core.JobRepository.
type Jobs struct{ b *binding }

var _ core.JobRepository = (*Jobs)(nil)

func (r *Jobs) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	defer r.b.lock()()
	now := r.b.s.now()
	j := model.Job{
		ID: newID(), EmployerID: req.EmployerID, Title: req.Title, Description: req.Description,
		Category: req.Category, JobType: req.JobType, SalaryMin: req.SalaryMin, SalaryMax: req.SalaryMax,
		SalaryPeriod: req.SalaryPeriod, LocationCity: req.LocationCity, LocationState: req.LocationState,
		LocationAddress: req.LocationAddress, Requirements: req.Requirements,
		MaxApplicants: req.MaxApplicants, PositionsAvailable: req.PositionsAvailable,
		Status: req.Status, IsActive: true, IsUrgent: req.IsUrgent,
		PostedAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if j.MaxApplicants == 0 {
		j.MaxApplicants = 50
	}
	if j.PositionsAvailable == 0 {
		j.PositionsAvailable = 1
	}
	if j.Status == "" {
		j.Status = model.JobStatusActive
	}
	if req.ExpiresAt != nil {
		j.ExpiresAt = req.ExpiresAt.UTC()
	} else {
		j.ExpiresAt = now.Add(model.DefaultJobLifetime)
	}
	r.b.state().jobs[j.ID] = j
	return &j, nil
}

func (r *Jobs) GetByID(_ context.Context, id string) (*model.Job, error) {
	defer r.b.lock()()
	j, ok := r.b.state().jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return &j, nil
}

func (r *Jobs) GetForUpdate(ctx context.Context, id string) (*model.Job, error) {
	return r.GetByID(ctx, id)
}

func (r *Jobs) Update(_ context.Context, id string, req model.UpdateJobRequest) (*model.Job, error) {
	defer r.b.lock()()
	st := r.b.state()
	j, ok := st.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	if req.Title != nil {
		j.Title = *req.Title
	}
	if req.Description != nil {
		j.Description = *req.Description
	}
	if req.SalaryMin != nil {
		j.SalaryMin = *req.SalaryMin
	}
	if req.SalaryMax != nil {
		j.SalaryMax = *req.SalaryMax
	}
	if req.LocationAddress != nil {
		j.LocationAddress = req.LocationAddress
	}
	if req.Requirements != nil {
		j.Requirements = *req.Requirements
	}
	if req.MaxApplicants != nil {
		j.MaxApplicants = *req.MaxApplicants
	}
	if req.PositionsAvailable != nil {
		j.PositionsAvailable = *req.PositionsAvailable
	}
	if req.Status != nil {
		j.Status = *req.Status
	}
	if req.IsUrgent != nil {
		j.IsUrgent = *req.IsUrgent
	}
	if req.ExpiresAt != nil {
		j.ExpiresAt = req.ExpiresAt.UTC()
	}
	j.UpdatedAt = r.b.s.now()
	st.jobs[id] = j
	return &j, nil
}

func (r *Jobs) matches(j model.Job, opts model.JobSearchOptions) bool {
	if opts.EmployerID != nil {
		if j.EmployerID != *opts.EmployerID {
			return false
		}
	} else if j.Status != model.JobStatusActive || !j.IsActive || !opts.Now.Before(j.ExpiresAt) {
		return false
	}
	if opts.Q != nil {
		q := strings.ToLower(*opts.Q)
		if !strings.Contains(strings.ToLower(j.Title), q) && !strings.Contains(strings.ToLower(j.Description), q) {
			return false
		}
	}
	if opts.Category != nil && j.Category != *opts.Category {
		return false
	}
	if opts.JobType != nil && j.JobType != *opts.JobType {
		return false
	}
	if opts.City != nil && !strings.EqualFold(j.LocationCity, *opts.City) {
		return false
	}
	if opts.State != nil && !strings.EqualFold(j.LocationState, *opts.State) {
		return false
	}
	if opts.MinSalary != nil && j.SalaryMax < *opts.MinSalary {
		return false
	}
	return !opts.UrgentOnly || j.IsUrgent
}

func (r *Jobs) filter(opts model.JobSearchOptions) []*model.Job {
	var out []*model.Job
	for _, j := range r.b.state().jobs {
		if r.matches(j, opts) {
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		less := out[a].PostedAt.Before(out[b].PostedAt)
		if opts.Sort == model.JobSortSalary {
			less = out[a].SalaryMax < out[b].SalaryMax
		}
		if opts.Dir == "asc" {
			return less
		}
		return !less
	})
	return out
}

func (r *Jobs) Search(_ context.Context, opts model.JobSearchOptions) ([]*model.Job, error) {
	defer r.b.lock()()
	return page(r.filter(opts), opts.Limit, opts.Offset), nil
}

func (r *Jobs) Count(_ context.Context, opts model.JobSearchOptions) (int, error) {
	defer r.b.lock()()
	return len(r.filter(opts)), nil
}

func (r *Jobs) mutate(id string, fn func(*model.Job) bool) (bool, error) {
	defer r.b.lock()()
	st := r.b.state()
	j, ok := st.jobs[id]
	if !ok {
		return false, core.ErrJobNotFound
	}
	if !fn(&j) {
		return false, nil
	}
	st.jobs[id] = j
	return true, nil
}

func (r *Jobs) IncrementViews(_ context.Context, id string) error {
	_, err := r.mutate(id, func(j *model.Job) bool { j.Views++; return true })
	return err
}

func (r *Jobs) ReserveApplicantSlot(_ context.Context, id string) (bool, error) {
	return r.mutate(id, func(j *model.Job) bool {
		if j.CurrentApplicants >= j.MaxApplicants {
			return false
		}
		j.CurrentApplicants++
		j.Applications++
		return true
	})
}

func (r *Jobs) ReleaseApplicantSlot(_ context.Context, id string) error {
	_, err := r.mutate(id, func(j *model.Job) bool {
		if j.CurrentApplicants > 0 {
			j.CurrentApplicants--
		}
		return true
	})
	return err
}

func (r *Jobs) IncrementPositionsFilled(_ context.Context, id string) error {
	_, err := r.mutate(id, func(j *model.Job) bool { j.PositionsFilled++; return true })
	return err
}

func (r *Jobs) Save(_ context.Context, userID, jobID string) (bool, error) {
	defer r.b.lock()()
	st := r.b.state()
	j, ok := st.jobs[jobID]
	if !ok {
		return false, core.ErrJobNotFound
	}
	key := savedKey{userID, jobID}
	if _, dup := st.saved[key]; dup {
		return false, nil
	}
	st.saved[key] = r.b.s.now()
	j.Saves++
	st.jobs[jobID] = j
	return true, nil
}

func (r *Jobs) Unsave(_ context.Context, userID, jobID string) (bool, error) {
	defer r.b.lock()()
	st := r.b.state()
	key := savedKey{userID, jobID}
	if _, ok := st.saved[key]; !ok {
		return false, nil
	}
	delete(st.saved, key)
	if j, ok := st.jobs[jobID]; ok && j.Saves > 0 {
		j.Saves--
		st.jobs[jobID] = j
	}
	return true, nil
}

func (r *Jobs) ListSaved(_ context.Context, userID string, limit, offset int) ([]*model.Job, error) {
	defer r.b.lock()()
	st := r.b.state()
	type savedJob struct {
		job *model.Job
		at  time.Time
	}
	var rows []savedJob
	for key, at := range st.saved {
		if key.userID != userID {
			continue
		}
		if j, ok := st.jobs[key.jobID]; ok {
			rows = append(rows, savedJob{&j, at})
		}
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].at.After(rows[b].at) })
	out := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.job)
	}
	return page(out, limit, offset), nil
}

// Applications implements core.ApplicationRepository.
type Applications struct{ b *binding }

var _ core.ApplicationRepository = (*Applications)(nil)

func (r *Applications) Create(_ context.Context, app *model.Application) (*model.Application, error) {
	defer r.b.lock()()
	st := r.b.state()
	for _, a := range st.apps {
		if a.JobID == app.JobID && a.ApplicantID == app.ApplicantID {
			return nil, core.ErrDuplicateApplication
		}
	}
	now := r.b.s.now()
	out := *app
	out.ID = newID()
	if out.Status == "" {
		out.Status = model.ApplicationStatusApplied
	}
	if out.Skills == nil {
		out.Skills = []string{}
	}
	out.CreatedAt, out.LastUpdated = now, now
	out.StatusHistory, out.Messages = nil, nil
	st.apps[out.ID] = out
	return &out, nil
}

func (r *Applications) GetByID(_ context.Context, id string) (*model.Application, error) {
	defer r.b.lock()()
	st := r.b.state()
	a, ok := st.apps[id]
	if !ok {
		return nil, core.ErrApplicationNotFound
	}
	a.StatusHistory = append([]model.StatusHistoryEntry(nil), st.history[id]...)
	a.Messages = append([]model.ApplicationMessage(nil), st.appMessages[id]...)
	return &a, nil
}

func (r *Applications) GetForUpdate(_ context.Context, id string) (*model.Application, error) {
	defer r.b.lock()()
	a, ok := r.b.state().apps[id]
	if !ok {
		return nil, core.ErrApplicationNotFound
	}
	return &a, nil
}

func (r *Applications) ExistsForApplicant(_ context.Context, jobID, applicantID string) (bool, error) {
	defer r.b.lock()()
	for _, a := range r.b.state().apps {
		if a.JobID == jobID && a.ApplicantID == applicantID {
			return true, nil
		}
	}
	return false, nil
}

func appMatches(a model.Application, opts model.ApplicationListOptions) bool {
	switch {
	case opts.ApplicantID != nil && a.ApplicantID != *opts.ApplicantID:
		return false
	case opts.EmployerID != nil && a.EmployerID != *opts.EmployerID:
		return false
	case opts.JobID != nil && a.JobID != *opts.JobID:
		return false
	case opts.Status != nil && a.Status != *opts.Status:
		return false
	}
	return true
}

func (r *Applications) filter(opts model.ApplicationListOptions) []*model.Application {
	var out []*model.Application
	for _, a := range r.b.state().apps {
		if appMatches(a, opts) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Applications) List(_ context.Context, opts model.ApplicationListOptions) ([]*model.Application, error) {
	defer r.b.lock()()
	return page(r.filter(opts), opts.Limit, opts.Offset), nil
}

func (r *Applications) Count(_ context.Context, opts model.ApplicationListOptions) (int, error) {
	defer r.b.lock()()
	return len(r.filter(opts)), nil
}

func (r *Applications) CountByStatus(
	_ context.Context,
	opts model.ApplicationListOptions,
) (map[model.ApplicationStatus]int, error) {
	defer r.b.lock()()
	out := map[model.ApplicationStatus]int{}
	for _, a := range r.filter(opts) {
		out[a.Status]++
	}
	return out, nil
}

func (r *Applications) Update(_ context.Context, app *model.Application) error {
	defer r.b.lock()()
	st := r.b.state()
	cur, ok := st.apps[app.ID]
	if !ok {
		return core.ErrApplicationNotFound
	}
	app.LastUpdated = r.b.s.now()
	cur.Status = app.Status
	cur.Interview = app.Interview
	cur.Offer = app.Offer
	cur.Evaluation = app.Evaluation
	cur.IsWithdrawn = app.IsWithdrawn
	cur.WithdrawnAt = app.WithdrawnAt
	cur.WithdrawnReason = app.WithdrawnReason
	cur.LastUpdated = app.LastUpdated
	st.apps[app.ID] = cur
	return nil
}

func (r *Applications) AppendHistory(_ context.Context, entry *model.StatusHistoryEntry) error {
	defer r.b.lock()()
	st := r.b.state()
	if _, ok := st.apps[entry.ApplicationID]; !ok {
		return core.ErrApplicationNotFound
	}
	st.historySeq++
	entry.ID = st.historySeq
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = r.b.s.now()
	}
	st.history[entry.ApplicationID] = append(st.history[entry.ApplicationID], *entry)
	return nil
}

func (r *Applications) History(_ context.Context, applicationID string) ([]model.StatusHistoryEntry, error) {
	defer r.b.lock()()
	return append([]model.StatusHistoryEntry(nil), r.b.state().history[applicationID]...), nil
}

func (r *Applications) AddMessage(_ context.Context, msg *model.ApplicationMessage) (*model.ApplicationMessage, error) {
	defer r.b.lock()()
	st := r.b.state()
	if _, ok := st.apps[msg.ApplicationID]; !ok {
		return nil, core.ErrApplicationNotFound
	}
	out := *msg
	out.ID = newID()
	out.CreatedAt = r.b.s.now()
	st.appMessages[msg.ApplicationID] = append(st.appMessages[msg.ApplicationID], out)
	return &out, nil
}

func (r *Applications) Messages(_ context.Context, applicationID string) ([]model.ApplicationMessage, error) {
	defer r.b.lock()()
	return append([]model.ApplicationMessage(nil), r.b.state().appMessages[applicationID]...), nil
}

func (r *Applications) MarkMessagesRead(_ context.Context, applicationID, readerID string) (int, error) {
	defer r.b.lock()()
	msgs := r.b.state().appMessages[applicationID]
	n := 0
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

// Notifications implements core.NotificationRepository.
type Notifications struct{ b *binding }

var _ core.NotificationRepository = (*Notifications)(nil)

func (r *Notifications) Create(_ context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
	defer r.b.lock()()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	n := model.Notification{
		ID: newID(), RecipientID: req.RecipientID, SenderID: req.SenderID, Type: req.Type,
		Title: req.Title, Message: req.Message, Data: req.Data, ActionURL: req.ActionURL,
		Priority: req.Priority, ExpiresAt: req.ExpiresAt, CreatedAt: r.b.s.now(),
	}
	st := r.b.state()
	st.notifications = append(st.notifications, n)
	return &n, nil
}

func (r *Notifications) visible(opts model.NotificationListOptions) []*model.Notification {
	now := opts.Now
	if now.IsZero() {
		now = r.b.s.now()
	}
	var out []*model.Notification
	st := r.b.state()
	for i := len(st.notifications) - 1; i >= 0; i-- {
		n := st.notifications[i]
		if n.RecipientID != opts.RecipientID || !n.Visible(now) {
			continue
		}
		if opts.UnreadOnly && n.IsRead {
			continue
		}
		if opts.Type != nil && n.Type != *opts.Type {
			continue
		}
		out = append(out, &n)
	}
	return out
}

func (r *Notifications) List(_ context.Context, opts model.NotificationListOptions) ([]*model.Notification, error) {
	defer r.b.lock()()
	return page(r.visible(opts), opts.Limit, opts.Offset), nil
}

func (r *Notifications) Count(_ context.Context, opts model.NotificationListOptions) (int, error) {
	defer r.b.lock()()
	return len(r.visible(opts)), nil
}

func (r *Notifications) each(recipientID string, fn func(*model.Notification) bool) int {
	st := r.b.state()
	now := r.b.s.now()
	n := 0
	for i := range st.notifications {
		row := &st.notifications[i]
		if row.RecipientID != recipientID || row.IsDeleted {
			continue
		}
		if fn(row) {
			if row.ReadAt == nil && row.IsRead {
				row.ReadAt = &now
			}
			n++
		}
	}
	return n
}

func (r *Notifications) MarkRead(_ context.Context, recipientID string, ids []string) (int, error) {
	defer r.b.lock()()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return r.each(recipientID, func(n *model.Notification) bool {
		if n.IsRead || (len(ids) > 0 && !want[n.ID]) {
			return false
		}
		n.IsRead = true
		return true
	}), nil
}

func (r *Notifications) MarkUnread(_ context.Context, recipientID, id string) (bool, error) {
	defer r.b.lock()()
	found := r.each(recipientID, func(n *model.Notification) bool {
		if n.ID != id {
			return false
		}
		n.IsRead, n.ReadAt = false, nil
		return true
	})
	return found > 0, nil
}

func (r *Notifications) SoftDelete(_ context.Context, recipientID, id string) (bool, error) {
	defer r.b.lock()()
	now := r.b.s.now()
	found := r.each(recipientID, func(n *model.Notification) bool {
		if n.ID != id {
			return false
		}
		n.IsDeleted, n.DeletedAt = true, &now
		return true
	})
	return found > 0, nil
}

func (r *Notifications) SoftDeleteRead(_ context.Context, recipientID string) (int, error) {
	defer r.b.lock()()
	now := r.b.s.now()
	return r.each(recipientID, func(n *model.Notification) bool {
		if !n.IsRead {
			return false
		}
		n.IsDeleted, n.DeletedAt = true, &now
		return true
	}), nil
}

func (r *Notifications) ClaimUndelivered(_ context.Context, limit int, now time.Time) ([]*model.Notification, error) {
	defer r.b.lock()()
	st := r.b.state()
	var out []*model.Notification
	for _, n := range st.notifications {
		if n.DeliveredAt != nil || n.IsDeleted {
			continue
		}
		if d, ok := st.deliveries[n.ID]; ok && (d.dead || d.next.After(now)) {
			continue
		}
		out = append(out, &n)
	}
	return page(out, limit, 0), nil
}

func (r *Notifications) MarkDeliveryFailed(_ context.Context, ids []string, retry core.DeliveryRetry) ([]string, error) {
	defer r.b.lock()()
	st := r.b.state()
	pending := make(map[string]bool, len(st.notifications))
	for _, n := range st.notifications {
		pending[n.ID] = n.DeliveredAt == nil
	}
	var dead []string
	for _, id := range ids {
		d := st.deliveries[id]
		if !pending[id] || d.dead {
			continue
		}
		d.attempts++
		d.next = retry.At.Add(retry.Delay(d.attempts))
		if d.attempts >= retry.MaxAttempts {
			d.dead = true
			dead = append(dead, id)
		}
		st.deliveries[id] = d
	}
	return dead, nil
}

func (r *Notifications) MarkDelivered(_ context.Context, ids []string, at time.Time) (int, error) {
	defer r.b.lock()()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	st := r.b.state()
	n := 0
	for i := range st.notifications {
		if want[st.notifications[i].ID] && st.notifications[i].DeliveredAt == nil {
			t := at
			st.notifications[i].DeliveredAt = &t
			n++
		}
	}
	return n, nil
}

// DeliveryAttempts reports failed webhook attempts for a notification and
// whether it was dead-lettered.
func (s *Store) DeliveryAttempts(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.st.deliveries[id]
	return d.attempts, d.dead
}

// Messages implements core.MessageRepository.
type Messages struct{ b *binding }

var _ core.MessageRepository = (*Messages)(nil)

func (r *Messages) Create(_ context.Context, senderID string, req *model.SendMessageRequest) (*model.Message, error) {
	defer r.b.lock()()
	st := r.b.state()
	if _, ok := st.users[req.ReceiverID]; !ok {
		return nil, core.ErrUserNotFound
	}
	m := model.Message{
		ID: newID(), SenderID: senderID, ReceiverID: req.ReceiverID, Text: req.Text,
		AttachmentURL: req.AttachmentURL, CreatedAt: r.b.s.now(),
	}
	st.messages = append(st.messages, m)
	return &m, nil
}

func between(m model.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (r *Messages) conversation(opts model.ConversationOptions) []*model.Message {
	var out []*model.Message
	msgs := r.b.state().messages
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if !m.IsDeleted && between(m, opts.UserID, opts.OtherUserID) {
			out = append(out, &m)
		}
	}
	return out
}

func (r *Messages) Conversation(_ context.Context, opts model.ConversationOptions) ([]*model.Message, error) {
	defer r.b.lock()()
	return page(r.conversation(opts), opts.Limit, opts.Offset), nil
}

func (r *Messages) CountConversation(_ context.Context, opts model.ConversationOptions) (int, error) {
	defer r.b.lock()()
	return len(r.conversation(opts)), nil
}

func (r *Messages) Conversations(_ context.Context, userID string) ([]*model.ConversationSummary, error) {
	defer r.b.lock()()
	byOther := map[string]*model.ConversationSummary{}
	var order []string
	msgs := r.b.state().messages
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.IsDeleted || (m.SenderID != userID && m.ReceiverID != userID) {
			continue
		}
		other := m.ReceiverID
		if other == userID {
			other = m.SenderID
		}
		sum, ok := byOther[other]
		if !ok {
			sum = &model.ConversationSummary{
				ConversationID: model.ConversationID(userID, other),
				OtherUserID:    other,
				LastMessage:    m,
			}
			byOther[other] = sum
			order = append(order, other)
		}
		if m.ReceiverID == userID && !m.IsRead {
			sum.UnreadCount++
		}
	}
	out := make([]*model.ConversationSummary, 0, len(order))
	for _, other := range order {
		out = append(out, byOther[other])
	}
	return out, nil
}

func (r *Messages) MarkConversationRead(_ context.Context, userID, otherUserID string) (int, error) {
	defer r.b.lock()()
	now := r.b.s.now()
	st := r.b.state()
	n := 0
	for i := range st.messages {
		m := &st.messages[i]
		if m.ReceiverID == userID && m.SenderID == otherUserID && !m.IsRead && !m.IsDeleted {
			m.IsRead, m.ReadAt = true, &now
			n++
		}
	}
	return n, nil
}

func (r *Messages) SoftDelete(_ context.Context, senderID, id string) (bool, error) {
	defer r.b.lock()()
	st := r.b.state()
	for i := range st.messages {
		m := &st.messages[i]
		if m.ID == id && m.SenderID == senderID && !m.IsDeleted {
			m.IsDeleted = true
			return true, nil
		}
	}
	return false, nil
}
