package health

import "time"

// ComponentType identifies which external collaborator a health entry covers
type ComponentType string

const (
	ComponentCompletion ComponentType = "completion"
	ComponentStore      ComponentType = "proposition_store"
	ComponentArchive    ComponentType = "suggestion_archive"
	ComponentPublisher  ComponentType = "publisher"
)

// HealthStatus represents the health state of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusCooldown  HealthStatus = "cooldown"
	StatusUnknown   HealthStatus = "unknown"
)

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Component     ComponentType `json:"component"`
	Name          string        `json:"name"` // e.g. the completion model or store path
	Status        HealthStatus  `json:"status"`
	LastChecked   time.Time     `json:"last_checked"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	FailureCount  int           `json:"failure_count"`
	LastError     string        `json:"last_error,omitempty"`
	CooldownUntil time.Time     `json:"cooldown_until"`
}
