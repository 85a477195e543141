package interfaces

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PublicKeyPEM is a PEM-encoded PKIX RSA public key.
type PublicKeyPEM []byte

// PrivateKeyPEM is a PEM-encoded PKCS#8 RSA private key. It exists in
// plaintext only in memory while the key manager is unlocked; it is never
// persisted in this form.
type PrivateKeyPEM []byte

// UserID identifies the owner of a key record on the server side.
type UserID string

// String returns the user ID as a plain string.
func (u UserID) String() string { return string(u) }

// KeyPair holds a freshly generated asymmetric keypair together with the
// display fingerprint of its public half.
type KeyPair struct {
	PublicKey   PublicKeyPEM
	PrivateKey  PrivateKeyPEM
	Fingerprint string
}

// WrappedPrivateKey is the password-wrapped form of a private key: the only
// form that is ever persisted or sent to the server. The salt feeds the
// password KDF and the nonce feeds the AEAD cipher; both are freshly random
// for every wrap.
type WrappedPrivateKey struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Encode serializes the wrapped key to its canonical JSON string form used by
// the local store and the wire format.
func (w WrappedPrivateKey) Encode() (string, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeWrappedPrivateKey parses the canonical JSON string form of a wrapped
// private key.
func DecodeWrappedPrivateKey(s string) (WrappedPrivateKey, error) {
	var w WrappedPrivateKey
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return WrappedPrivateKey{}, err
	}
	if len(w.Salt) == 0 || len(w.Nonce) == 0 || len(w.Ciphertext) == 0 {
		return WrappedPrivateKey{}, errors.New("wrapped private key is missing salt, nonce or ciphertext")
	}
	return w, nil
}

// KeyRecord is the tuple persisted for a user: the public key, the wrapped
// private key, the fingerprint and the creation time. The server stores
// exactly this and nothing else.
type KeyRecord struct {
	PublicKey         PublicKeyPEM `json:"publicKey"`
	WrappedPrivateKey string       `json:"wrappedPrivateKey"`
	Fingerprint       string       `json:"fingerprint"`
	CreatedAt         time.Time    `json:"createdAt,omitempty"`
}

// KeyStatus is the derived view of the key manager's state. It is recomputed
// on every call and never stored.
type KeyStatus struct {
	HasKeyPair  bool
	IsLocked    bool
	Fingerprint string
	CreatedAt   *time.Time
}

// ServerKeyState is the outcome of probing the server for a key record. The
// three values let callers distinguish "nothing to fetch" from "not currently
// authenticated" and pick the right flow.
type ServerKeyState int

const (
	// ServerKeyAbsent means the server answered and holds no key record.
	ServerKeyAbsent ServerKeyState = iota
	// ServerKeyPresent means the server holds a key record for this user.
	ServerKeyPresent
	// ServerKeyUnauthorized means the server rejected the request for lack
	// of authentication; whether a record exists is unknown.
	ServerKeyUnauthorized
)

// String returns the state name.
func (s ServerKeyState) String() string {
	switch s {
	case ServerKeyAbsent:
		return "absent"
	case ServerKeyPresent:
		return "present"
	case ServerKeyUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// SensitiveFieldSet is a named list of record field names whose values must
// be encrypted before a record leaves the device. The sets are configuration
// consumed by the record encryption service, not owned by it.
type SensitiveFieldSet struct {
	Name   string
	Fields []string
}

// Contains reports whether the field name is part of the set.
func (s SensitiveFieldSet) Contains(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Default field sets matching the record shapes handled by the intake forms.
// Callers may pass their own sets instead.
var (
	GenericFieldSet = SensitiveFieldSet{
		Name:   "generic",
		Fields: []string{"notes", "freeText", "attachmentsMeta"},
	}

	InterviewFieldSet = SensitiveFieldSet{
		Name: "interview",
		Fields: []string{
			"symptoms", "anamnesis", "medication", "diagnosisNotes",
			"followUpNotes",
		},
	}

	PatientFieldSet = SensitiveFieldSet{
		Name: "patient",
		Fields: []string{
			"firstName", "lastName", "dateOfBirth", "insuranceNumber",
			"street", "phone", "email",
		},
	}
)

// FieldSetByName resolves one of the predefined field sets by its name.
func FieldSetByName(name string) (SensitiveFieldSet, bool) {
	switch strings.ToLower(name) {
	case GenericFieldSet.Name:
		return GenericFieldSet, true
	case InterviewFieldSet.Name:
		return InterviewFieldSet, true
	case PatientFieldSet.Name:
		return PatientFieldSet, true
	default:
		return SensitiveFieldSet{}, false
	}
}
