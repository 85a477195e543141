package fieldcrypt

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/medisync/recordcrypt/interfaces"
)

// Record stamp keys written by EncryptRecord and removed by DecryptRecord.
const (
	StampVersionField = "_encryptionVersion"
	StampTimeField    = "_encryptedAt"

	// EncryptionFormatVersion is the current record encryption format.
	EncryptionFormatVersion = 1
)

// KeySource is the view of the key manager the record service needs: status
// for capability checks and the two keys for the actual crypto.
type KeySource interface {
	Status(ctx context.Context) interfaces.KeyStatus
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
	PrivateKey() (*rsa.PrivateKey, error)
}

// Capability describes what record operations are currently possible.
// Encryption requires only the public key, so it survives locking;
// decryption requires the unlocked private key.
type Capability struct {
	CanEncrypt bool   `json:"canEncrypt"`
	CanDecrypt bool   `json:"canDecrypt"`
	Reason     string `json:"reason,omitempty"`
}

// Service applies the field cipher across configured sensitive field sets of
// structured records.
type Service struct {
	keys KeySource
	log  *slog.Logger
}

// NewService creates a record encryption service on top of a key source.
func NewService(keys KeySource, log *slog.Logger) *Service {
	return &Service{keys: keys, log: log}
}

// Capability derives the current encrypt/decrypt capability purely from the
// key manager's status. No network I/O.
func (s *Service) Capability(ctx context.Context) Capability {
	status := s.keys.Status(ctx)

	switch {
	case !status.HasKeyPair:
		return Capability{Reason: "no keypair present"}
	case status.IsLocked:
		return Capability{CanEncrypt: true, Reason: "private key locked"}
	default:
		return Capability{CanEncrypt: true, CanDecrypt: true}
	}
}

// EncryptRecord encrypts every configured sensitive field present and
// non-empty on the record, skips already-tagged values, and stamps the
// result with the encryption format version and time. The input record is
// not mutated.
func (s *Service) EncryptRecord(ctx context.Context, record map[string]any, fieldSet interfaces.SensitiveFieldSet) (map[string]any, error) {
	pub, err := s.keys.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot encrypt record: %w", err)
	}

	out := cloneRecord(record)
	for _, field := range fieldSet.Fields {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}

		plaintext, isString := value.(string)
		if isString {
			if plaintext == "" {
				continue
			}
			if IsEncrypted(plaintext) {
				// Never re-encrypt a tagged value.
				continue
			}
		} else {
			// Structured values are serialized before encryption and
			// restored on decryption.
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize field %q: %w", field, err)
			}
			plaintext = string(raw)
		}

		encrypted, err := EncryptField(plaintext, pub)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt field %q: %w", field, err)
		}
		out[field] = encrypted
	}

	out[StampVersionField] = EncryptionFormatVersion
	out[StampTimeField] = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}

// DecryptRecord is the inverse of EncryptRecord. Each field's failure is
// isolated: an undecryptable envelope becomes the sentinel value and the
// rest of the record still decrypts. Decrypted payloads that parse as JSON
// are restored to structured form; otherwise the raw string is kept.
func (s *Service) DecryptRecord(ctx context.Context, record map[string]any, fieldSet interfaces.SensitiveFieldSet) (map[string]any, error) {
	priv, err := s.keys.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("cannot decrypt record: %w", err)
	}

	out := cloneRecord(record)
	for _, field := range fieldSet.Fields {
		value, ok := out[field]
		if !ok {
			continue
		}

		tagged, isString := value.(string)
		if !isString || !IsEncrypted(tagged) {
			continue
		}

		plaintext, err := DecryptField(tagged, priv)
		if err != nil {
			s.log.Warn("Failed to decrypt record field, substituting sentinel",
				slog.String("field", field),
				"err", err)
			out[field] = plaintext // sentinel
			continue
		}

		var structured any
		if json.Unmarshal([]byte(plaintext), &structured) == nil && isStructured(structured) {
			out[field] = structured
		} else {
			out[field] = plaintext
		}
	}

	delete(out, StampVersionField)
	delete(out, StampTimeField)
	return out, nil
}

// EncryptBatch applies EncryptRecord over an ordered list of records,
// preserving order. Items are independent: the first failing record aborts
// with its index in the error, matching write-path semantics where a record
// must never leave the device partially encrypted.
func (s *Service) EncryptBatch(ctx context.Context, records []map[string]any, fieldSet interfaces.SensitiveFieldSet) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for i, record := range records {
		encrypted, err := s.EncryptRecord(ctx, record, fieldSet)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt record %d: %w", i, err)
		}
		out = append(out, encrypted)
	}
	return out, nil
}

// DecryptBatch applies DecryptRecord over an ordered list of records,
// preserving order. Per-record and per-field failures are isolated; the
// batch always returns one output record per input record.
func (s *Service) DecryptBatch(ctx context.Context, records []map[string]any, fieldSet interfaces.SensitiveFieldSet) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for i, record := range records {
		decrypted, err := s.DecryptRecord(ctx, record, fieldSet)
		if err != nil {
			// No private key at all: nothing in the batch can decrypt.
			return nil, fmt.Errorf("failed to decrypt record %d: %w", i, err)
		}
		out = append(out, decrypted)
	}
	return out, nil
}

func cloneRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record)+2)
	for k, v := range record {
		out[k] = v
	}
	return out
}

func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}
