package keymanager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/medisync/recordcrypt/cryptoutils"
	"github.com/medisync/recordcrypt/interfaces"
)

// Backup blob format constants. The version field enables forward-compatible
// format evolution; importers reject unknown versions before any decryption.
const (
	BackupTypeMarker    = "recordcrypt-key-backup"
	BackupFormatVersion = 1
)

// backupBlob is the outer, password-independent shell of an exported backup.
type backupBlob struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// backupDocument is the encrypted inner payload: the full key record.
type backupDocument struct {
	PublicKey         string    `json:"publicKey"`
	WrappedPrivateKey string    `json:"wrappedPrivateKey"`
	Fingerprint       string    `json:"fingerprint"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ExportBackup bundles the persisted key record into one opaque string,
// wrapped under a key derived from the given password with a fresh salt and
// nonce. The backup password is independent of the key's unlock password;
// restoring the backup still requires the original unlock password to use
// the private key.
func (m *Manager) ExportBackup(ctx context.Context, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.loadRecord(ctx)
	if err != nil {
		return "", err
	}

	document, err := json.Marshal(backupDocument{
		PublicKey:         string(record.PublicKey),
		WrappedPrivateKey: record.WrappedPrivateKey,
		Fingerprint:       record.Fingerprint,
		CreatedAt:         record.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize backup document: %w", err)
	}

	salt, err := cryptoutils.NewSalt()
	if err != nil {
		return "", err
	}
	nonce, err := cryptoutils.NewNonce()
	if err != nil {
		return "", err
	}
	aead, err := cryptoutils.PasswordAEAD(password, salt)
	if err != nil {
		return "", err
	}

	blob, err := json.Marshal(backupBlob{
		Type:    BackupTypeMarker,
		Version: BackupFormatVersion,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, document, nil),
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize backup blob: %w", err)
	}

	m.log.Info("Exported key backup", slog.String("fingerprint", record.Fingerprint))
	return base64.StdEncoding.EncodeToString(blob), nil
}

// ImportBackup restores a key record from an exported backup string. The
// type marker and version are validated before any decryption, so a
// malformed blob is reported as ErrMalformedBackup rather than a password
// failure. On success the record is persisted locally in the locked state
// and pushed to the server best-effort.
func (m *Manager) ImportBackup(ctx context.Context, backup, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := base64.StdEncoding.DecodeString(backup)
	if err != nil {
		return interfaces.ErrMalformedBackup
	}

	var blob backupBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return interfaces.ErrMalformedBackup
	}
	if blob.Type != BackupTypeMarker || blob.Version != BackupFormatVersion {
		return interfaces.ErrMalformedBackup
	}
	if len(blob.Salt) == 0 || len(blob.Nonce) == 0 || len(blob.Data) == 0 {
		return interfaces.ErrMalformedBackup
	}

	aead, err := cryptoutils.PasswordAEAD(password, blob.Salt)
	if err != nil {
		return err
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return interfaces.ErrMalformedBackup
	}

	raw, err = aead.Open(nil, blob.Nonce, blob.Data, nil)
	if err != nil {
		return interfaces.ErrInvalidPassword
	}

	var document backupDocument
	if err := json.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("backup decrypted but its document is unreadable: %w", err)
	}
	if _, err := interfaces.DecodeWrappedPrivateKey(document.WrappedPrivateKey); err != nil {
		return fmt.Errorf("backup contains a malformed wrapped key: %w", err)
	}

	record := &interfaces.KeyRecord{
		PublicKey:         interfaces.PublicKeyPEM(document.PublicKey),
		WrappedPrivateKey: document.WrappedPrivateKey,
		Fingerprint:       document.Fingerprint,
		CreatedAt:         document.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := m.persistRecord(ctx, record); err != nil {
		return err
	}

	// The inner wrapped key still requires its own unlock password.
	m.privateKey = nil

	m.log.Info("Imported key backup", slog.String("fingerprint", record.Fingerprint))
	m.pushToServer(ctx, record)
	return nil
}
