// Package directory is the user/department collaborator: identity,
// department membership, hierarchy ranks, and per-department SLA
// configuration. The consult engine consumes it through the
// consult.Directory interface; the write side exists to administer it.
package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/consult"
)

// Department maps to the department table. The response-time windows
// per urgency level are stored in minutes.
type Department struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	Code                  string    `db:"code" json:"code"`
	Active                bool      `db:"active" json:"active"`
	EmergencyResponseMins int       `db:"emergency_response_mins" json:"emergency_response_mins"`
	UrgentResponseMins    int       `db:"urgent_response_mins" json:"urgent_response_mins"`
	RoutineResponseMins   int       `db:"routine_response_mins" json:"routine_response_mins"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// SLA returns the department's response windows as durations.
func (d *Department) SLA() consult.SLAConfig {
	return consult.SLAConfig{
		EmergencyResponse: time.Duration(d.EmergencyResponseMins) * time.Minute,
		UrgentResponse:    time.Duration(d.UrgentResponseMins) * time.Minute,
		RoutineResponse:   time.Duration(d.RoutineResponseMins) * time.Minute,
	}
}

// User maps to the directory_user table. Each user belongs to exactly
// one department; HierarchyNumber is their seniority rank within it
// (lower = more senior), used to pick escalation targets.
type User struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	DisplayName     string    `db:"display_name" json:"display_name"`
	DepartmentID    uuid.UUID `db:"department_id" json:"department_id"`
	HierarchyNumber int       `db:"hierarchy_number" json:"hierarchy_number"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
