package relay

import (
	"testing"

	"github.com/dkeye/remoterg/internal/domain"
)

func TestAssignEvictsPreviousOccupant(t *testing.T) {
	a, b := newFakeEndpoint("a"), newFakeEndpoint("b")
	s := NewSession("S1", 0)

	s, evicted := Assign(s, domain.RoleHost, a)
	if evicted != nil {
		t.Fatalf("first assign evicted %v", evicted)
	}
	s, evicted = Assign(s, domain.RoleHost, b)
	if evicted != Endpoint(a) {
		t.Fatalf("evicted = %v, want a", evicted)
	}
	if s.Host != Endpoint(b) || s.Viewer != nil {
		t.Fatalf("slots = host:%v viewer:%v", s.Host, s.Viewer)
	}

	// Re-assigning the same endpoint is not an eviction.
	if _, evicted = Assign(s, domain.RoleHost, b); evicted != nil {
		t.Fatalf("self re-assign evicted %v", evicted)
	}
}

func TestReleaseOnlyClearsCurrentOccupant(t *testing.T) {
	old, cur := newFakeEndpoint("old"), newFakeEndpoint("cur")
	s := NewSession("S1", 0)
	s, _ = Assign(s, domain.RoleViewer, old)
	s, _ = Assign(s, domain.RoleViewer, cur)

	s, cleared := Release(s, domain.RoleViewer, old)
	if cleared || s.Viewer != Endpoint(cur) {
		t.Fatalf("late close of evicted endpoint cleared the slot")
	}
	s, cleared = Release(s, domain.RoleViewer, cur)
	if !cleared || s.Viewer != nil {
		t.Fatalf("Release(cur) cleared=%v viewer=%v", cleared, s.Viewer)
	}
}

func TestAtMostOneOccupantPerRole(t *testing.T) {
	s := NewSession("S1", 0)
	var all []*fakeEndpoint
	for i := 0; i < 10; i++ {
		ep := newFakeEndpoint(string(rune('a' + i)))
		all = append(all, ep)
		role := domain.Roles[i%2]
		var evicted Endpoint
		s, evicted = Assign(s, role, ep)
		if evicted != nil {
			evicted.Close(CloseNormal, ReasonReplaced)
		}
	}
	open := map[domain.Role]int{}
	for i, ep := range all {
		if ep.IsOpen() {
			open[domain.Roles[i%2]]++
		}
	}
	for _, role := range domain.Roles {
		if open[role] != 1 {
			t.Errorf("role %s has %d open endpoints, want 1", role, open[role])
		}
	}
}
