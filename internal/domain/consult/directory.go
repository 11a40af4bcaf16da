package consult

import (
	"context"

	"github.com/google/uuid"
)

// HierarchyMember is one active member of a department's escalation
// hierarchy. Rank is ordinal seniority: lower rank = more senior.
type HierarchyMember struct {
	UserID uuid.UUID `json:"user_id"`
	Rank   int       `json:"rank"`
}

// DepartmentConfig is what the directory knows about a department that
// the lifecycle engine needs: SLA windows and the escalation hierarchy,
// ordered by ascending rank (most senior first).
type DepartmentConfig struct {
	DepartmentID uuid.UUID         `json:"department_id"`
	SLA          SLAConfig         `json:"sla"`
	Hierarchy    []HierarchyMember `json:"hierarchy"`
}

// MaxEscalationLevel is the highest escalation level the hierarchy
// supports: one step per member above the most junior.
func (d *DepartmentConfig) MaxEscalationLevel() int {
	if len(d.Hierarchy) == 0 {
		return 0
	}
	return len(d.Hierarchy) - 1
}

// EscalationTarget returns the member targeted at the given escalation
// level: level 1 is one step more senior than the most junior member,
// and each further level climbs one rank, clamping at the most senior.
// Level 0 has no target (nothing has escalated yet).
func (d *DepartmentConfig) EscalationTarget(level int) (HierarchyMember, bool) {
	if level <= 0 || len(d.Hierarchy) == 0 {
		return HierarchyMember{}, false
	}
	idx := len(d.Hierarchy) - 1 - level
	if idx < 0 {
		idx = 0
	}
	return d.Hierarchy[idx], true
}

// DirectoryUser is the identity slice of a user the engine needs for
// membership and targeting checks.
type DirectoryUser struct {
	ID           uuid.UUID `json:"id"`
	DepartmentID uuid.UUID `json:"department_id"`
	Rank         int       `json:"rank"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"`
}

// Directory is the external user/department collaborator. Lookup
// failures abort a transition before any write; the service maps them
// to ErrDirectoryUnavailable.
type Directory interface {
	GetDepartmentConfig(ctx context.Context, deptID uuid.UUID) (*DepartmentConfig, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*DirectoryUser, error)
	HasPermission(ctx context.Context, userID uuid.UUID, action string, c *ConsultRequest) (bool, error)
}
