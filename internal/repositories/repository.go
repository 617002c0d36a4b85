package repositories

import "context"

// Repository aggregates the stores the services depend on
type Repository interface {
	Course() CourseRepository
	User() UserRepository
	Dashboard() DashboardRepository

	// External identity provider; not part of any database transaction
	Identity() IdentityProvider

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize migrates the schema and wires the repositories
	Initialize() error

	GetRepository() Repository

	HealthCheck(ctx context.Context) error

	Shutdown(ctx context.Context) error
}
