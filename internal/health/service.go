package health

import (
	"log"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldownDuration = 5 * time.Minute
)

// Service tracks the health of the engine's external collaborators.
// Components that fail repeatedly are marked unhealthy; quota errors put them in cooldown.
type Service struct {
	mu               sync.RWMutex
	components       map[ComponentType]*ComponentHealth
	failureThreshold int
	cooldownDuration time.Duration
	now              func() time.Time
}

// NewService creates a new health service
func NewService(failureThreshold int, cooldownDuration time.Duration) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldownDuration <= 0 {
		cooldownDuration = defaultCooldownDuration
	}

	return &Service{
		components:       make(map[ComponentType]*ComponentHealth),
		failureThreshold: failureThreshold,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// Register adds a component to the health cache
func (s *Service) Register(component ComponentType, name string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.components[component]; !exists {
		s.components[component] = &ComponentHealth{
			Component: component,
			Name:      name,
			Status:    StatusUnknown,
		}
		log.Printf("[HEALTH] Registered component %s (%s)", component, name)
	}
}

// IsHealthy reports whether a component can currently be used.
// Unknown components are assumed healthy.
func (s *Service) IsHealthy(component ComponentType) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.components[component]
	if !exists {
		return true
	}

	switch h.Status {
	case StatusUnhealthy:
		return false
	case StatusCooldown:
		return s.now().After(h.CooldownUntil)
	default:
		return true
	}
}

// MarkHealthy records a successful interaction with a component
func (s *Service) MarkHealthy(component ComponentType) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.components[component]
	if !exists {
		return
	}

	wasUnhealthy := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	now := s.now()
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = now
	h.LastChecked = now
	h.CooldownUntil = time.Time{}

	if wasUnhealthy {
		log.Printf("[HEALTH] %s (%s) recovered - now healthy", component, h.Name)
	}
}

// MarkUnhealthy records a failure. Quota errors start a cooldown; other errors
// mark the component unhealthy once the failure threshold is reached.
func (s *Service) MarkUnhealthy(component ComponentType, errMsg string, httpCode int) {
	if s == nil {
		return
	}
	if IsQuotaError(httpCode, errMsg) {
		s.SetCooldown(component, errMsg, ParseCooldownDuration(httpCode, errMsg))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.components[component]
	if !exists {
		return
	}

	h.FailureCount++
	h.LastError = errMsg
	h.LastChecked = s.now()

	if h.FailureCount >= s.failureThreshold {
		h.Status = StatusUnhealthy
		h.CooldownUntil = h.LastChecked.Add(s.cooldownDuration)
		log.Printf("[HEALTH] %s (%s) marked UNHEALTHY after %d failures: %s",
			component, h.Name, h.FailureCount, truncateStr(errMsg, 200))
	} else {
		log.Printf("[HEALTH] %s (%s) failure %d/%d: %s",
			component, h.Name, h.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
	}
}

// SetCooldown puts a component into cooldown
func (s *Service) SetCooldown(component ComponentType, reason string, duration time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.components[component]
	if !exists {
		return
	}

	h.Status = StatusCooldown
	h.LastError = reason
	h.LastChecked = s.now()
	h.CooldownUntil = h.LastChecked.Add(duration)

	log.Printf("[HEALTH] %s (%s) in COOLDOWN until %s (reason: %s)",
		component, h.Name, h.CooldownUntil.Format(time.RFC3339), truncateStr(reason, 100))
}

// ProbeDue reports whether an unhealthy component has waited long enough to be tried again
func (s *Service) ProbeDue(component ComponentType) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.components[component]
	if !exists || h.Status != StatusUnhealthy {
		return false
	}
	return s.now().After(h.CooldownUntil)
}

// Get returns a copy of one component's health entry
func (s *Service) Get(component ComponentType) (ComponentHealth, bool) {
	if s == nil {
		return ComponentHealth{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.components[component]
	if !exists {
		return ComponentHealth{}, false
	}
	return *h, true
}

// GetStatus returns component -> status, resolving expired cooldowns to unknown
func (s *Service) GetStatus() map[string]string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	status := make(map[string]string, len(s.components))
	for component, h := range s.components {
		st := h.Status
		if st == StatusCooldown && now.After(h.CooldownUntil) {
			st = StatusUnknown
		}
		status[string(component)] = string(st)
	}
	return status
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
