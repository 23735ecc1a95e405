package domain

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const AttachmentVersion = 1

var ErrInvalidAttachment = errors.New("invalid attachment")

// Attachment is the identity persisted on an endpoint so that role
// assignment can be rebuilt after the relay is suspended.
type Attachment struct {
	Version   int       `cbor:"v" json:"v"`
	Role      Role      `cbor:"role" json:"role"`
	SessionID SessionID `cbor:"session_id" json:"session_id"`
}

func NewAttachment(role Role, id SessionID) Attachment {
	return Attachment{Version: AttachmentVersion, Role: role, SessionID: id}
}

func EncodeAttachment(a Attachment) ([]byte, error) {
	b, err := cbor.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode attachment: %w", err)
	}
	return b, nil
}

// DecodeAttachment rejects empty payloads, unknown versions and invalid roles.
func DecodeAttachment(b []byte) (Attachment, error) {
	if len(b) == 0 {
		return Attachment{}, fmt.Errorf("%w: empty", ErrInvalidAttachment)
	}
	var a Attachment
	if err := cbor.Unmarshal(b, &a); err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	if a.Version != AttachmentVersion {
		return Attachment{}, fmt.Errorf("%w: version %d", ErrInvalidAttachment, a.Version)
	}
	if !a.Role.Valid() {
		return Attachment{}, fmt.Errorf("%w: role %q", ErrInvalidAttachment, a.Role)
	}
	if a.SessionID == "" {
		return Attachment{}, fmt.Errorf("%w: empty session id", ErrInvalidAttachment)
	}
	return a, nil
}
