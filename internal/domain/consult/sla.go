package consult

import "time"

// SLAConfig holds a department's response-time windows per urgency
// level.
type SLAConfig struct {
	EmergencyResponse time.Duration `json:"emergency_response"`
	UrgentResponse    time.Duration `json:"urgent_response"`
	RoutineResponse   time.Duration `json:"routine_response"`
}

// Window returns the response window for the given urgency.
func (c SLAConfig) Window(u Urgency) time.Duration {
	switch u {
	case UrgencyEmergency:
		return c.EmergencyResponse
	case UrgencyUrgent:
		return c.UrgentResponse
	default:
		return c.RoutineResponse
	}
}

// Deadline is the pure SLA policy: the timestamp beyond which a consult
// of the given urgency, created at createdAt, counts as overdue under
// the department's configuration. It is computed on demand and never
// stored, so it is always correct relative to wall-clock now.
func Deadline(u Urgency, cfg SLAConfig, createdAt time.Time) time.Time {
	return createdAt.Add(cfg.Window(u))
}

// Overdue reports whether the consult has passed its SLA deadline at
// the given instant. Terminal consults are never overdue.
func Overdue(c *ConsultRequest, cfg SLAConfig, now time.Time) bool {
	if c.Status.Terminal() {
		return false
	}
	return now.After(Deadline(c.Urgency, cfg, c.CreatedAt))
}
