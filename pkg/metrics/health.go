package metrics

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Component names reported by the convergence controller
const (
	ComponentBroker   = "broker"
	ComponentCluster  = "cluster"
	ComponentPolicy   = "policy"
	ComponentPassword = "password"
)

// CriticalComponents must be healthy before the node reports ready. A
// failure elsewhere only degrades the node.
var CriticalComponents = []string{ComponentBroker, ComponentCluster}

// Health and readiness states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// ComponentStatus is the last result recorded for one component
type ComponentStatus struct {
	Healthy bool      `json:"healthy"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Message    string                     `json:"message,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
}

type healthState struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	started    time.Time
	version    string
}

var health = &healthState{
	components: make(map[string]ComponentStatus),
	started:    time.Now(),
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// UpdateComponent records the latest result of a component
func UpdateComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[name] = ComponentStatus{
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// ResetHealth forgets every recorded component
func ResetHealth() {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components = make(map[string]ComponentStatus)
	health.started = time.Now()
}

// GetHealth is unhealthy when a critical component failed and degraded
// when any other component did
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := StatusHealthy
	for name, comp := range health.components {
		if comp.Healthy {
			continue
		}
		if slices.Contains(CriticalComponents, name) {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}
	return health.snapshot(status, "")
}

// GetReadiness reports ready once every critical component is healthy
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	for _, name := range CriticalComponents {
		comp, ok := health.components[name]
		switch {
		case !ok:
			return health.snapshot(StatusNotReady, "waiting for first "+name+" check")
		case !comp.Healthy:
			return health.snapshot(StatusNotReady, name+": "+comp.Message)
		}
	}
	return health.snapshot(StatusReady, "")
}

// snapshot must be called with mu held
func (h *healthState) snapshot(status, message string) HealthStatus {
	components := make(map[string]ComponentStatus, len(h.components))
	for name, comp := range h.components {
		components[name] = comp
	}
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
}

// HealthHandler serves GetHealth; only unhealthy maps to 503
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := GetHealth()
		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// ReadyHandler serves GetReadiness
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := GetReadiness()
		code := http.StatusOK
		if status.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// LivenessHandler always answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health.mu.RLock()
		uptime := time.Since(health.started).Round(time.Second).String()
		health.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "uptime": uptime})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
