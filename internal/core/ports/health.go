package ports

import "context"

// HealthChecker reports liveness of an external dependency.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name identifies the dependency in the health report.
	Name() string
}
