// Package mocks provides mock implementations for testing the clipforge job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/clipforge/clipforge/internal/core JobRepository

// Generate mock for DeadLetterRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=dead_letter_repository_mock.go github.com/clipforge/clipforge/internal/core DeadLetterRepository

// Generate mock for EventBus interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=event_bus_mock.go github.com/clipforge/clipforge/internal/core EventBus

// Generate mock for CacheRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/clipforge/clipforge/internal/core CacheRepository

// Generate mock for PlaylistLister interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=playlist_lister_mock.go github.com/clipforge/clipforge/internal/core PlaylistLister

// Generate mock for ReaperRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=reaper_repository_mock.go github.com/clipforge/clipforge/internal/core ReaperRepository
