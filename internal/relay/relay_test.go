package relay

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dkeye/remoterg/internal/domain"
)

func newTestRelay(t *testing.T, id domain.SessionID, eps ...Endpoint) *Relay {
	t.Helper()
	return New(id, 0, staticSource(eps), zerolog.Nop())
}

func mustUpgrade(t *testing.T, r *Relay, role domain.Role, ep Endpoint) {
	t.Helper()
	if err := r.Upgrade(role, ep); err != nil {
		t.Fatalf("Upgrade(%s): %v", role, err)
	}
}

func TestUpgradePersistsAttachment(t *testing.T) {
	r := newTestRelay(t, "S1")
	host := newFakeEndpoint("h")
	mustUpgrade(t, r, domain.RoleHost, host)

	att, err := domain.DecodeAttachment(host.Attachment())
	if err != nil {
		t.Fatalf("DecodeAttachment: %v", err)
	}
	if att.Role != domain.RoleHost || att.SessionID != "S1" {
		t.Fatalf("attachment = %+v", att)
	}
	if r.Session().Host != Endpoint(host) {
		t.Fatalf("host slot not set")
	}
}

func TestUpgradeRejectsInvalidRole(t *testing.T) {
	r := newTestRelay(t, "S1")
	if err := r.Upgrade("admin", newFakeEndpoint("x")); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
}

func TestUpgradeEvictsPreviousOccupant(t *testing.T) {
	r := newTestRelay(t, "S1")
	h1, h2 := newFakeEndpoint("h1"), newFakeEndpoint("h2")
	mustUpgrade(t, r, domain.RoleHost, h1)
	mustUpgrade(t, r, domain.RoleHost, h2)

	if h1.IsOpen() {
		t.Fatal("evicted host still open")
	}
	if h1.closeCode != CloseNormal || h1.closeReason != ReasonReplaced {
		t.Errorf("evicted close = %d %q", h1.closeCode, h1.closeReason)
	}
	if r.Session().Host != Endpoint(h2) {
		t.Errorf("host slot is not the newest endpoint")
	}
}

func TestOnMessageForwardsToOppositeRole(t *testing.T) {
	r := newTestRelay(t, "S1")
	host, viewer := newFakeEndpoint("h"), newFakeEndpoint("v")
	mustUpgrade(t, r, domain.RoleHost, host)
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	r.OnMessage(host, []byte(`{"type":"offer","sdp":"abc"}`))

	got := viewer.messages()
	if len(got) != 1 {
		t.Fatalf("viewer got %d messages, want 1", len(got))
	}
	m := decode(t, got[0])
	if m["session_id"] != "S1" || m["negotiation_id"] != "default" || m["sdp"] != "abc" {
		t.Errorf("forwarded = %v", m)
	}
	if len(host.messages()) != 0 {
		t.Errorf("sender received its own message")
	}

	r.OnMessage(viewer, []byte(`{"type":"answer","sdp":"def","negotiation_id":"n1"}`))
	if got := host.messages(); len(got) != 1 || decode(t, got[0])["negotiation_id"] != "n1" {
		t.Errorf("host got %v", got)
	}
}

func TestOnMessageDropsInvalidInput(t *testing.T) {
	r := newTestRelay(t, "S1")
	host, viewer := newFakeEndpoint("h"), newFakeEndpoint("v")
	mustUpgrade(t, r, domain.RoleHost, host)
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	r.OnMessage(host, []byte(`{oops`))
	r.OnMessage(host, []byte(`{"type":"renegotiate"}`))
	if n := len(viewer.messages()); n != 0 {
		t.Fatalf("viewer got %d messages, want 0", n)
	}
	if !host.IsOpen() {
		t.Fatal("sender closed on malformed message")
	}
}

func TestViewerAbnormalCloseClearsOnlyViewer(t *testing.T) {
	r := newTestRelay(t, "S1")
	host, viewer := newFakeEndpoint("h"), newFakeEndpoint("v")
	mustUpgrade(t, r, domain.RoleHost, host)
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	viewer.drop()
	r.OnClose(viewer, 1006, "")

	s := r.Session()
	if s.Viewer != nil {
		t.Error("viewer slot not cleared")
	}
	if s.Host != Endpoint(host) {
		t.Error("host slot changed")
	}

	r.OnMessage(host, []byte(`{"type":"offer","sdp":"abc"}`))
	if n := len(viewer.messages()); n != 0 {
		t.Errorf("closed viewer got %d messages", n)
	}
}

func TestLateCloseOfEvictedEndpointKeepsSuccessor(t *testing.T) {
	r := newTestRelay(t, "S1")
	v1, v2 := newFakeEndpoint("v1"), newFakeEndpoint("v2")
	mustUpgrade(t, r, domain.RoleViewer, v1)
	mustUpgrade(t, r, domain.RoleViewer, v2)

	r.OnClose(v1, CloseNormal, ReasonReplaced)
	if r.Session().Viewer != Endpoint(v2) {
		t.Fatal("late close of evicted viewer cleared its successor")
	}
}

func TestOnMessageClosesEndpointWithBadAttachment(t *testing.T) {
	r := newTestRelay(t, "S1")
	viewer := newFakeEndpoint("v")
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	rogue := newFakeEndpoint("rogue")
	rogue.SetAttachment([]byte("garbage"))
	r.OnMessage(rogue, []byte(`{"type":"offer","sdp":"abc"}`))

	if rogue.IsOpen() || rogue.closeReason != ReasonInvalidAttachment {
		t.Fatalf("rogue open=%v reason=%q", rogue.IsOpen(), rogue.closeReason)
	}
	if n := len(viewer.messages()); n != 0 {
		t.Fatalf("viewer got %d messages from unidentified endpoint", n)
	}
}

func TestOnMessageClosesEndpointFromOtherSession(t *testing.T) {
	r := newTestRelay(t, "S1")
	viewer := newFakeEndpoint("v")
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	stray := newFakeEndpoint("stray")
	att, _ := domain.EncodeAttachment(domain.NewAttachment(domain.RoleHost, "S2"))
	stray.SetAttachment(att)
	r.OnMessage(stray, []byte(`{"type":"offer","sdp":"abc"}`))

	if stray.IsOpen() || stray.closeReason != ReasonSessionMismatch {
		t.Fatalf("stray open=%v reason=%q", stray.IsOpen(), stray.closeReason)
	}
	if n := len(viewer.messages()); n != 0 {
		t.Fatalf("viewer got %d messages from another session", n)
	}
}

func TestOnMessageSurvivesSendFailure(t *testing.T) {
	r := newTestRelay(t, "S1")
	host, viewer := newFakeEndpoint("h"), newFakeEndpoint("v")
	viewer.sendErr = errors.New("buffer full")
	mustUpgrade(t, r, domain.RoleHost, host)
	mustUpgrade(t, r, domain.RoleViewer, viewer)

	r.OnMessage(host, []byte(`{"type":"offer","sdp":"abc"}`))
	if r.Session().Viewer != Endpoint(viewer) {
		t.Fatal("send failure changed the viewer slot")
	}
}
