// Package mocks provides mock implementations of the core ports for service tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the repository
// interfaces in internal/core. The mocks expose the usual fluent expectation API.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	apps := mocks.NewMockApplicationRepository(ctrl)
//	apps.EXPECT().GetByID(gomock.Any(), "app-1").Return(app, nil)
package mocks

// Repositories, cache and unit of work used by the marketplace services.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=core_mocks.go github.com/kaamsathi/kaamsathi-api/internal/core ApplicationRepository,CacheRepository,JobRepository,MessageRepository,NotificationRepository,ReconcilerRepository,UnitOfWork,UserRepository
