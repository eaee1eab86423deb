// Package mocks provides gomock implementations of the console ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockDirectoryClient(ctrl)
//	client.EXPECT().ListEmployees(gomock.Any()).Return(employees, nil)
package mocks

// DirectoryClient: ListEmployees, CreateEmployee, UpdateEmployee, DeleteEmployee
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=directory_client_mock.go github.com/target/opsconsole/internal/ports DirectoryClient

// UserDirectory: ListUsers
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_directory_mock.go github.com/target/opsconsole/internal/ports UserDirectory

// AuthGateway: Login, ChangeSecret
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_gateway_mock.go github.com/target/opsconsole/internal/ports AuthGateway

// Detector: Detect
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=detector_mock.go github.com/target/opsconsole/internal/ports Detector
