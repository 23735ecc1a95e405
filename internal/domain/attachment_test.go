package domain

import (
	"errors"
	"testing"
)

func TestAttachmentRoundTrip(t *testing.T) {
	for _, role := range Roles {
		in := NewAttachment(role, "S1")
		b, err := EncodeAttachment(in)
		if err != nil {
			t.Fatalf("encode %s: %v", role, err)
		}
		out, err := DecodeAttachment(b)
		if err != nil {
			t.Fatalf("decode %s: %v", role, err)
		}
		if out != in {
			t.Errorf("round trip = %+v, want %+v", out, in)
		}
	}
}

func TestDecodeAttachmentRejects(t *testing.T) {
	encode := func(a Attachment) []byte {
		b, err := EncodeAttachment(a)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return b
	}
	cases := map[string][]byte{
		"empty":         nil,
		"garbage":       []byte("not cbor at all"),
		"version":       encode(Attachment{Version: 2, Role: RoleHost, SessionID: "S1"}),
		"role":          encode(Attachment{Version: 1, Role: "admin", SessionID: "S1"}),
		"no session id": encode(Attachment{Version: 1, Role: RoleViewer}),
	}
	for name, b := range cases {
		if _, err := DecodeAttachment(b); !errors.Is(err, ErrInvalidAttachment) {
			t.Errorf("%s: err = %v, want ErrInvalidAttachment", name, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("viewer"); err != nil || r != RoleViewer {
		t.Fatalf("ParseRole(viewer) = %q, %v", r, err)
	}
	if _, err := ParseRole("Host"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("ParseRole(Host) err = %v, want ErrInvalidRole", err)
	}
	if RoleHost.Opposite() != RoleViewer || RoleViewer.Opposite() != RoleHost {
		t.Fatal("Opposite is not symmetric")
	}
}
