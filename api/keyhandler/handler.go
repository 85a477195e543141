package keyhandler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medisync/recordcrypt/api"
	"github.com/medisync/recordcrypt/interfaces"
)

// Authorizer decides whether a request may act on the given user's key
// record. Returning interfaces.ErrServerUnauthorized produces a 401; any
// other error produces a 403.
type Authorizer func(r *http.Request, user interfaces.UserID) error

// AllowAll is an Authorizer that accepts every request. Intended for tests
// and deployments that terminate authentication upstream.
func AllowAll(r *http.Request, user interfaces.UserID) error { return nil }

// BearerTokenAuthorizer returns an Authorizer that requires a static bearer
// token in the Authorization header.
func BearerTokenAuthorizer(token string) Authorizer {
	return func(r *http.Request, user interfaces.UserID) error {
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return interfaces.ErrServerUnauthorized
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return interfaces.ErrServerUnauthorized
		}
		return nil
	}
}

// Handler processes HTTP requests for the key storage API. Records arrive
// already wrapped under the client's password, so the handler only validates
// shape and delegates persistence to the registry.
type Handler struct {
	registry  interfaces.KeyRegistry
	authorize Authorizer
	log       *slog.Logger
}

// NewHandler creates a new HTTP request handler backed by the given registry.
// A nil authorizer allows all requests.
func NewHandler(registry interfaces.KeyRegistry, authorize Authorizer, log *slog.Logger) *Handler {
	if authorize == nil {
		authorize = AllowAll
	}
	return &Handler{
		registry:  registry,
		authorize: authorize,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/keys/{user_id}/status", h.HandleStatus)
	r.Get("/api/keys/{user_id}", h.HandleFetch)
	r.Post("/api/keys/{user_id}", h.HandleStore)
	r.Delete("/api/keys/{user_id}", h.HandleDelete)
}

// HandleStatus reports whether a key record exists for the user.
//
// URL format: GET /api/keys/{user_id}/status
// Response: JSON-encoded api.KeyStatusResponse.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	record, err := h.registry.Fetch(r.Context(), user)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		h.writeJSON(w, http.StatusOK, api.KeyStatusResponse{HasServerKey: false})
		return
	}
	if err != nil {
		h.log.Error("Failed to check key record", "err", err, slog.String("user", user.String()))
		h.writeError(w, http.StatusServiceUnavailable, "key storage unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, api.KeyStatusResponse{
		HasServerKey: true,
		Fingerprint:  record.Fingerprint,
	})
}

// HandleFetch returns the stored key record for the user.
//
// URL format: GET /api/keys/{user_id}
// Response: JSON-encoded interfaces.KeyRecord. The private key inside the
// record remains wrapped under the client's password.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	record, err := h.registry.Fetch(r.Context(), user)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		h.writeError(w, http.StatusNotFound, "no key record for user")
		return
	}
	if err != nil {
		h.log.Error("Failed to fetch key record", "err", err, slog.String("user", user.String()))
		h.writeError(w, http.StatusServiceUnavailable, "key storage unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// HandleStore stores or replaces the key record for the user.
//
// URL format: POST /api/keys/{user_id}
// Request body: JSON-encoded interfaces.KeyRecord with all of public key,
// wrapped private key and fingerprint present. A missing CreatedAt is
// stamped server-side.
func (h *Handler) HandleStore(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	var record interfaces.KeyRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid key record: %v", err))
		return
	}
	if err := validateRecord(&record); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := h.registry.Store(r.Context(), user, &record); err != nil {
		h.log.Error("Failed to store key record", "err", err, slog.String("user", user.String()))
		h.writeError(w, http.StatusServiceUnavailable, "key storage unavailable")
		return
	}

	h.log.Info("Stored key record",
		slog.String("user", user.String()),
		slog.String("fingerprint", record.Fingerprint))
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes the key record for the user.
//
// URL format: DELETE /api/keys/{user_id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}

	err := h.registry.Delete(r.Context(), user)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		h.writeError(w, http.StatusNotFound, "no key record for user")
		return
	}
	if err != nil {
		h.log.Error("Failed to delete key record", "err", err, slog.String("user", user.String()))
		h.writeError(w, http.StatusServiceUnavailable, "key storage unavailable")
		return
	}

	h.log.Info("Deleted key record", slog.String("user", user.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authorizedUser(w http.ResponseWriter, r *http.Request) (interfaces.UserID, bool) {
	user := interfaces.UserID(chi.URLParam(r, "user_id"))
	if user == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return "", false
	}

	if err := h.authorize(r, user); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, interfaces.ErrServerUnauthorized) {
			status = http.StatusUnauthorized
		}
		h.writeError(w, status, "unauthorized")
		return "", false
	}
	return user, true
}

func validateRecord(record *interfaces.KeyRecord) error {
	if len(record.PublicKey) == 0 {
		return errors.New("key record is missing public key")
	}
	if record.WrappedPrivateKey == "" {
		return errors.New("key record is missing wrapped private key")
	}
	if _, err := interfaces.DecodeWrappedPrivateKey(record.WrappedPrivateKey); err != nil {
		return fmt.Errorf("key record has malformed wrapped private key: %w", err)
	}
	if record.Fingerprint == "" {
		return errors.New("key record is missing fingerprint")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}
