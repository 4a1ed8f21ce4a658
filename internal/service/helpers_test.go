package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/mocks"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() Clock { return func() time.Time { return testNow } }

const (
	workerID   = "0b8f6a2e-4c1d-4e0a-9a51-7d3c2b1a0f01"
	worker2ID  = "0b8f6a2e-4c1d-4e0a-9a51-7d3c2b1a0f02"
	employerID = "5e2a9c4b-8d7f-4a3e-b1c0-2f6e8d9a7b01"
	adminID    = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e01"
	jobUUID    = "3f0c1e2d-5b6a-4978-8c9d-1e2f3a4b5c01"
	appUUID    = "7a6b5c4d-3e2f-4a1b-9c8d-7e6f5a4b3c01"
)

func workerCaller() domainauth.Caller {
	return domainauth.Caller{UserID: workerID, Role: domainauth.RoleWorker}
}

func employerCaller() domainauth.Caller {
	return domainauth.Caller{UserID: employerID, Role: domainauth.RoleEmployer}
}

func adminCaller() domainauth.Caller {
	return domainauth.Caller{UserID: adminID, Role: domainauth.RoleAdmin}
}

// txMocks wires gomock repositories behind a UnitOfWork that simply invokes fn.
type txMocks struct {
	tx            *mocks.MockUnitOfWork
	users         *mocks.MockUserRepository
	jobs          *mocks.MockJobRepository
	applications  *mocks.MockApplicationRepository
	notifications *mocks.MockNotificationRepository
	messages      *mocks.MockMessageRepository
}

func newTxMocks(t *testing.T) *txMocks {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := &txMocks{
		tx:            mocks.NewMockUnitOfWork(ctrl),
		users:         mocks.NewMockUserRepository(ctrl),
		jobs:          mocks.NewMockJobRepository(ctrl),
		applications:  mocks.NewMockApplicationRepository(ctrl),
		notifications: mocks.NewMockNotificationRepository(ctrl),
		messages:      mocks.NewMockMessageRepository(ctrl),
	}
	m.tx.EXPECT().
		WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(core.TxRepositories) error) error {
			return fn(m.repos())
		}).
		AnyTimes()
	return m
}

func (m *txMocks) repos() core.TxRepositories {
	return core.TxRepositories{
		Users:         m.users,
		Jobs:          m.jobs,
		Applications:  m.applications,
		Notifications: m.notifications,
		Messages:      m.messages,
	}
}

type unreadSpy struct {
	calls [][]string
}

func (u *unreadSpy) InvalidateUnread(_ context.Context, userIDs ...string) {
	u.calls = append(u.calls, userIDs)
}

func (u *unreadSpy) all() []string {
	var out []string
	for _, c := range u.calls {
		out = append(out, c...)
	}
	return out
}
