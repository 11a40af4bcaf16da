package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/consult"
)

// -- Mock repositories --

type mockDeptRepo struct {
	depts map[uuid.UUID]*Department
}

func newMockDeptRepo() *mockDeptRepo {
	return &mockDeptRepo{depts: make(map[uuid.UUID]*Department)}
}

func (m *mockDeptRepo) Create(_ context.Context, d *Department) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.depts[d.ID] = d
	return nil
}

func (m *mockDeptRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.depts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockDeptRepo) Update(_ context.Context, d *Department) error {
	if _, ok := m.depts[d.ID]; !ok {
		return ErrNotFound
	}
	m.depts[d.ID] = d
	return nil
}

func (m *mockDeptRepo) List(_ context.Context, limit, offset int) ([]*Department, int, error) {
	var result []*Department
	for _, d := range m.depts {
		result = append(result, d)
	}
	return result, len(result), nil
}

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) ListByDepartment(_ context.Context, deptID uuid.UUID) ([]*User, error) {
	var result []*User
	for _, u := range m.users {
		if u.DepartmentID == deptID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, len(result), nil
}

// -- Fixture --

func newTestService(t *testing.T) (*Service, *Department, []*User) {
	t.Helper()
	depts := newMockDeptRepo()
	users := newMockUserRepo()
	svc := NewService(depts, users)
	ctx := context.Background()

	dept := &Department{Name: "Cardiology", Code: "CARD"}
	if err := svc.CreateDepartment(ctx, dept); err != nil {
		t.Fatalf("CreateDepartment() error: %v", err)
	}

	var members []*User
	for i, name := range []string{"head", "attending", "resident"} {
		u := &User{
			Username:        name,
			DisplayName:     name,
			DepartmentID:    dept.ID,
			HierarchyNumber: i,
		}
		if err := svc.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s) error: %v", name, err)
		}
		members = append(members, u)
	}
	return svc, dept, members
}

func TestGetDepartmentConfig(t *testing.T) {
	svc, dept, members := newTestService(t)

	cfg, err := svc.GetDepartmentConfig(context.Background(), dept.ID)
	if err != nil {
		t.Fatalf("GetDepartmentConfig() error: %v", err)
	}
	if cfg.DepartmentID != dept.ID {
		t.Error("wrong department in config")
	}
	// Defaulted SLA windows: 30m / 4h / 24h.
	if cfg.SLA.EmergencyResponse != 30*time.Minute {
		t.Errorf("expected 30m emergency window, got %v", cfg.SLA.EmergencyResponse)
	}
	if cfg.SLA.RoutineResponse != 24*time.Hour {
		t.Errorf("expected 24h routine window, got %v", cfg.SLA.RoutineResponse)
	}

	// Hierarchy sorted most senior first.
	if len(cfg.Hierarchy) != 3 {
		t.Fatalf("expected 3 hierarchy members, got %d", len(cfg.Hierarchy))
	}
	if cfg.Hierarchy[0].UserID != members[0].ID {
		t.Error("expected the head first in the hierarchy")
	}
	if cfg.Hierarchy[2].UserID != members[2].ID {
		t.Error("expected the resident last in the hierarchy")
	}
}

func TestGetDepartmentConfig_ExcludesInactive(t *testing.T) {
	svc, dept, members := newTestService(t)
	ctx := context.Background()

	members[1].Active = false
	if err := svc.UpdateUser(ctx, members[1]); err != nil {
		t.Fatal(err)
	}

	cfg, err := svc.GetDepartmentConfig(ctx, dept.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Hierarchy) != 2 {
		t.Fatalf("expected inactive member excluded, got %d members", len(cfg.Hierarchy))
	}
	for _, m := range cfg.Hierarchy {
		if m.UserID == members[1].ID {
			t.Error("inactive member must not appear in the hierarchy")
		}
	}
}

func TestGetDepartmentConfig_UnknownDepartment(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.GetDepartmentConfig(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown department")
	}
}

func TestHasPermission_MembershipPolicy(t *testing.T) {
	svc, target, members := newTestService(t)
	ctx := context.Background()

	requestingDept := &Department{Name: "Emergency", Code: "ED"}
	if err := svc.CreateDepartment(ctx, requestingDept); err != nil {
		t.Fatal(err)
	}
	requester := &User{Username: "edoc", DisplayName: "edoc", DepartmentID: requestingDept.ID}
	if err := svc.CreateUser(ctx, requester); err != nil {
		t.Fatal(err)
	}

	c := &consult.ConsultRequest{
		RequestingDeptID: requestingDept.ID,
		TargetDeptID:     target.ID,
	}
	specialist := members[1]

	cases := []struct {
		name   string
		user   uuid.UUID
		action string
		want   bool
	}{
		{"requester submits", requester.ID, consult.ActionSubmit, true},
		{"specialist cannot submit", specialist.ID, consult.ActionSubmit, false},
		{"specialist acknowledges", specialist.ID, consult.ActionAcknowledge, true},
		{"requester cannot acknowledge", requester.ID, consult.ActionAcknowledge, false},
		{"specialist completes", specialist.ID, consult.ActionComplete, true},
		{"requester notes", requester.ID, consult.ActionNote, true},
		{"specialist notes", specialist.ID, consult.ActionNote, true},
		{"requester reads", requester.ID, consult.ActionRead, true},
		{"requester cancels", requester.ID, consult.ActionCancel, true},
		{"unknown action", requester.ID, "consult.delete", false},
	}
	for _, tc := range cases {
		got, err := svc.HasPermission(ctx, tc.user, tc.action, c)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestHasPermission_InactiveUserDenied(t *testing.T) {
	svc, target, members := newTestService(t)
	ctx := context.Background()

	members[0].Active = false
	if err := svc.UpdateUser(ctx, members[0]); err != nil {
		t.Fatal(err)
	}

	c := &consult.ConsultRequest{TargetDeptID: target.ID}
	ok, err := svc.HasPermission(ctx, members[0].ID, consult.ActionAcknowledge, c)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("inactive user must be denied")
	}
}

func TestHasPermission_UnknownUser(t *testing.T) {
	svc, target, _ := newTestService(t)
	c := &consult.ConsultRequest{TargetDeptID: target.ID}
	if _, err := svc.HasPermission(context.Background(), uuid.New(), consult.ActionRead, c); err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestCreateDepartment_DefaultsSLA(t *testing.T) {
	svc, _, _ := newTestService(t)
	d := &Department{Name: "Neurology", Code: "NEURO"}
	if err := svc.CreateDepartment(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if d.EmergencyResponseMins != 30 || d.UrgentResponseMins != 240 || d.RoutineResponseMins != 1440 {
		t.Errorf("expected default SLA windows 30/240/1440, got %d/%d/%d",
			d.EmergencyResponseMins, d.UrgentResponseMins, d.RoutineResponseMins)
	}
	if !d.Active {
		t.Error("new department should be active")
	}
}

func TestCreateDepartment_RequiresName(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.CreateDepartment(context.Background(), &Department{Code: "X"}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc, dept, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateUser(ctx, &User{DepartmentID: dept.ID}); err == nil {
		t.Error("expected error for missing username")
	}
	if err := svc.CreateUser(ctx, &User{Username: "x"}); err == nil {
		t.Error("expected error for missing department")
	}
	if err := svc.CreateUser(ctx, &User{Username: "x", DepartmentID: dept.ID, HierarchyNumber: -1}); err == nil {
		t.Error("expected error for negative hierarchy number")
	}
}

func TestDepartmentSLA_Conversion(t *testing.T) {
	d := &Department{EmergencyResponseMins: 15, UrgentResponseMins: 120, RoutineResponseMins: 720}
	sla := d.SLA()
	if sla.EmergencyResponse != 15*time.Minute {
		t.Errorf("expected 15m, got %v", sla.EmergencyResponse)
	}
	if sla.UrgentResponse != 2*time.Hour {
		t.Errorf("expected 2h, got %v", sla.UrgentResponse)
	}
	if sla.RoutineResponse != 12*time.Hour {
		t.Errorf("expected 12h, got %v", sla.RoutineResponse)
	}
}
