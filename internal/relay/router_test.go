package relay

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/dkeye/remoterg/internal/domain"
)

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m
}

func TestRouteTagsOffer(t *testing.T) {
	to, out, err := Route(domain.RoleHost, "S1", []byte(`{"type":"offer","sdp":"abc"}`))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if to != domain.RoleViewer {
		t.Errorf("target = %s, want viewer", to)
	}
	want := map[string]any{"type": "offer", "sdp": "abc", "session_id": "S1", "negotiation_id": "default"}
	if got := decode(t, out); !reflect.DeepEqual(got, want) {
		t.Errorf("routed = %v, want %v", got, want)
	}
}

func TestTagKeepsNegotiationIDAndOtherFields(t *testing.T) {
	raw := []byte(`{"type":"ice_candidate","candidate":"c","sdp_mid":null,"sdp_mline_index":0,"negotiation_id":"n7","extra":{"a":[1,2]}}`)
	_, out, err := Route(domain.RoleViewer, "S9", raw)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	got := decode(t, out)
	want := decode(t, raw)
	want["session_id"] = "S9"
	if !reflect.DeepEqual(got, want) {
		t.Errorf("routed = %v, want %v", got, want)
	}
}

func TestTagOverwritesForeignSessionID(t *testing.T) {
	_, out, err := Route(domain.RoleHost, "S1", []byte(`{"type":"answer","sdp":"x","session_id":"other"}`))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := decode(t, out)["session_id"]; got != "S1" {
		t.Errorf("session_id = %v, want S1", got)
	}
}

func TestParseMessageErrors(t *testing.T) {
	cases := []struct {
		raw  string
		want error
	}{
		{`not json`, ErrMalformedMessage},
		{`null`, ErrMalformedMessage},
		{`{"sdp":"x"}`, ErrMalformedMessage},
		{`{"type":7}`, ErrMalformedMessage},
		{`{"type":"bye"}`, ErrUnknownMessageType},
	}
	for _, tc := range cases {
		if _, _, err := ParseMessage([]byte(tc.raw)); !errors.Is(err, tc.want) {
			t.Errorf("ParseMessage(%s) err = %v, want %v", tc.raw, err, tc.want)
		}
	}
}
