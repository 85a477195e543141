package registry

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/medisync/recordcrypt/interfaces"
)

// Factory creates key registries from URI strings.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// RegistryFor creates a key registry from a backend URI.
// The URI format is [scheme]://[auth@]host[/path][?params]
//
// Supported schemes:
//   - memory:// - In-memory storage, for tests and single-process setups
//   - file:// - Local filesystem storage
//   - vault:// - HashiCorp Vault KV v2 secrets engine
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) RegistryFor(backendURI string) (interfaces.KeyRegistry, error) {
	u, err := url.Parse(backendURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidBackendURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemoryRegistry(), nil
	case "file":
		return f.createFileRegistry(u)
	case "vault":
		return f.createVaultRegistry(u)
	case "s3":
		return f.createS3Registry(u)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidBackendURI, u.Scheme)
	}
}

// createFileRegistry creates a filesystem registry.
// URI format: file:///var/lib/recordcrypt/keys or file://./relative/path
func (f *Factory) createFileRegistry(u *url.URL) (interfaces.KeyRegistry, error) {
	f.log.Debug("Creating file registry", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidBackendURI, u.String())
	}

	return NewFileRegistry(path, f.log)
}

// createVaultRegistry creates a Vault KV v2 registry.
// URI format: vault://mount/path/prefix?addr=https://vault:8200&token=...
// The token query parameter is optional; the Vault client falls back to the
// VAULT_TOKEN environment variable.
func (f *Factory) createVaultRegistry(u *url.URL) (interfaces.KeyRegistry, error) {
	f.log.Debug("Creating Vault registry", slog.String("mount", u.Host))

	mountPath := u.Host
	if mountPath == "" {
		return nil, fmt.Errorf("%w: missing mount path in Vault URI", interfaces.ErrInvalidBackendURI)
	}
	dataPath := strings.Trim(u.Path, "/")
	if dataPath == "" {
		dataPath = "recordcrypt/keys"
	}

	query := u.Query()
	address := query.Get("addr")
	if address == "" {
		address = "http://127.0.0.1:8200"
	}
	token := query.Get("token")

	return NewVaultRegistry(address, mountPath, dataPath, token, f.log)
}

// createS3Registry creates an S3 registry.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Registry(u *url.URL) (interfaces.KeyRegistry, error) {
	f.log.Debug("Creating S3 registry", slog.String("bucket", u.Host))

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 URI", interfaces.ErrInvalidBackendURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	cfg := S3Config{
		Bucket:   u.Host,
		Prefix:   strings.Trim(u.Path, "/"),
		Region:   region,
		Endpoint: query.Get("endpoint"),
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
		f.log.Debug("Using embedded credentials for S3 access")
	}

	return NewS3Registry(cfg, f.log)
}
