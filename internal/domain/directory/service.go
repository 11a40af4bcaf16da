package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/consult"
)

// Service serves directory lookups and administration. It implements
// consult.Directory.
type Service struct {
	depts DepartmentRepository
	users UserRepository
}

func NewService(depts DepartmentRepository, users UserRepository) *Service {
	return &Service{depts: depts, users: users}
}

// GetDepartmentConfig returns the SLA windows and escalation hierarchy
// of a department. The hierarchy contains the active members ordered by
// ascending rank (most senior first).
func (s *Service) GetDepartmentConfig(ctx context.Context, deptID uuid.UUID) (*consult.DepartmentConfig, error) {
	dept, err := s.depts.GetByID(ctx, deptID)
	if err != nil {
		return nil, err
	}

	members, err := s.users.ListByDepartment(ctx, deptID)
	if err != nil {
		return nil, err
	}

	hierarchy := make([]consult.HierarchyMember, 0, len(members))
	for _, m := range members {
		if !m.Active {
			continue
		}
		hierarchy = append(hierarchy, consult.HierarchyMember{UserID: m.ID, Rank: m.HierarchyNumber})
	}
	sort.SliceStable(hierarchy, func(i, j int) bool {
		return hierarchy[i].Rank < hierarchy[j].Rank
	})

	return &consult.DepartmentConfig{
		DepartmentID: dept.ID,
		SLA:          dept.SLA(),
		Hierarchy:    hierarchy,
	}, nil
}

// GetUser returns the identity slice the engine needs.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*consult.DirectoryUser, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &consult.DirectoryUser{
		ID:           u.ID,
		DepartmentID: u.DepartmentID,
		Rank:         u.HierarchyNumber,
		DisplayName:  u.DisplayName,
		Active:       u.Active,
	}, nil
}

// HasPermission answers the capability check for consult operations.
// The policy is membership-based: submitting, cancelling, and reading
// belong to the requesting side, working the consult belongs to the
// target side, and note-taking is open to both departments.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, action string, c *consult.ConsultRequest) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !u.Active {
		return false, nil
	}
	if c == nil {
		return false, nil
	}

	requesting := u.DepartmentID == c.RequestingDeptID
	target := u.DepartmentID == c.TargetDeptID

	switch action {
	case consult.ActionSubmit:
		return requesting, nil
	case consult.ActionAcknowledge, consult.ActionAssign, consult.ActionComplete:
		return target, nil
	case consult.ActionNote, consult.ActionRead:
		return requesting || target, nil
	case consult.ActionCancel:
		return requesting || target, nil
	default:
		return false, nil
	}
}

// -- Administration --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	if d.EmergencyResponseMins <= 0 {
		d.EmergencyResponseMins = 30
	}
	if d.UrgentResponseMins <= 0 {
		d.UrgentResponseMins = 4 * 60
	}
	if d.RoutineResponseMins <= 0 {
		d.RoutineResponseMins = 24 * 60
	}
	d.Active = true
	return s.depts.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.depts.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, d *Department) error {
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	return s.depts.Update(ctx, d)
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.depts.List(ctx, limit, offset)
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.DepartmentID == uuid.Nil {
		return fmt.Errorf("department_id is required")
	}
	if u.HierarchyNumber < 0 {
		return fmt.Errorf("hierarchy_number must be >= 0")
	}
	u.Active = true
	return s.users.Create(ctx, u)
}

func (s *Service) GetUserRecord(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	return s.users.Update(ctx, u)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) ListDepartmentMembers(ctx context.Context, deptID uuid.UUID) ([]*User, error) {
	return s.users.ListByDepartment(ctx, deptID)
}
