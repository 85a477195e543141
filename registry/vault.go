package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/medisync/recordcrypt/interfaces"
)

// VaultRegistry stores key records in HashiCorp Vault using the KV v2 API.
// The records a client pushes are already password-wrapped ciphertext; Vault
// adds at-rest protection and access auditing on top.
type VaultRegistry struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultRegistry creates a Vault-backed registry.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (e.g. "recordcrypt/keys")
//   - token: Vault token; empty falls back to the client's environment
func NewVaultRegistry(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultRegistry, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultRegistry{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

// Fetch returns the key record stored for the user.
func (r *VaultRegistry) Fetch(ctx context.Context, user interfaces.UserID) (*interfaces.KeyRecord, error) {
	start := time.Now()
	path := r.recordPath(user)

	secret, err := r.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		r.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrKeyNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.New("invalid data format in Vault response")
	}
	encoded, ok := data["record"].(string)
	if !ok {
		return nil, errors.New("record key not found in Vault data")
	}

	var record interfaces.KeyRecord
	if err := json.Unmarshal([]byte(encoded), &record); err != nil {
		return nil, fmt.Errorf("stored key record is malformed: %w", err)
	}

	r.log.Debug("Fetched key record from Vault",
		slog.String("user", user.String()),
		slog.Duration("duration", time.Since(start)))
	return &record, nil
}

// Store writes the key record for the user.
func (r *VaultRegistry) Store(ctx context.Context, user interfaces.UserID, record *interfaces.KeyRecord) error {
	start := time.Now()
	path := r.recordPath(user)

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode key record: %w", err)
	}

	// KV v2 write format.
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"record": string(encoded),
		},
	}

	if _, err := r.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		r.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	r.log.Debug("Stored key record in Vault",
		slog.String("user", user.String()),
		slog.String("fingerprint", record.Fingerprint),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Delete removes the user's key record.
func (r *VaultRegistry) Delete(ctx context.Context, user interfaces.UserID) error {
	if _, err := r.Fetch(ctx, user); err != nil {
		return err
	}

	path := r.recordPath(user)
	if _, err := r.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	r.log.Debug("Deleted key record from Vault", slog.String("user", user.String()))
	return nil
}

// Available checks that Vault is initialized and unsealed.
func (r *VaultRegistry) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := r.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		r.log.Debug("Vault health check failed", "err", err)
		return false
	}
	if !health.Initialized || health.Sealed {
		r.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (r *VaultRegistry) Name() string {
	return fmt.Sprintf("vault-%s-%s", r.mountPath, r.dataPath)
}

func (r *VaultRegistry) recordPath(user interfaces.UserID) string {
	sum := sha256.Sum256([]byte(user))
	return fmt.Sprintf("%s/data/%s/%s", r.mountPath, r.dataPath, hex.EncodeToString(sum[:]))
}
