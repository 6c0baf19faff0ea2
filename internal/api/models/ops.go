package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the body of /v1/ops/status. ActiveDegradationFlags lists the
// providers whose circuit is not closed.
type SystemStatus struct {
	Status                 HealthStatus      `json:"status"`
	Time                   Timestamp         `json:"time"`
	Subsystems             []SubsystemStatus `json:"subsystems"`
	Providers              []ProviderStatus  `json:"providers"`
	ActiveDegradationFlags []string          `json:"activeDegradationFlags,omitempty"`
}

// SubsystemStatus reports a dependency such as the trip store.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus reports one map provider's circuit breaker.
type ProviderStatus struct {
	Provider string       `json:"provider"`
	Status   HealthStatus `json:"status"`
	Circuit  string       `json:"circuit"`

	// Failures counts consecutive failed calls since the last success.
	Failures      uint32     `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp `json:"lastFailureAt,omitempty"`
	Message       *string    `json:"message,omitempty"`
}
