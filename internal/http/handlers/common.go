package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/auth"
	"github.com/hiyari/incident-reports-back/internal/http/middleware"
	"github.com/hiyari/incident-reports-back/internal/schema"
	"github.com/hiyari/incident-reports-back/internal/service"
)

const (
	maxBodyBytes = 1 << 20

	idempotencyTTL = 24 * time.Hour
)

var errInvalidPayload = errors.New("invalid payload")

type Dependencies struct {
	AI         *service.AIGenerationService
	Reports    *service.ReportsService
	Validation *service.ValidationService
	Stats      *service.StatsService
	Levels     *service.LevelService
	Schemas    *schema.Validator
	// Location renders export timestamps.
	Location *time.Location
	Logger   *zap.Logger
}

type API struct {
	ai          *service.AIGenerationService
	reports     *service.ReportsService
	validation  *service.ValidationService
	stats       *service.StatsService
	levels      *service.LevelService
	schemas     *schema.Validator
	location    *time.Location
	idempotency *idempotencyStore
	logger      *zap.Logger
}

func NewAPI(deps Dependencies) *API {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &API{
		ai:          deps.AI,
		reports:     deps.Reports,
		validation:  deps.Validation,
		stats:       deps.Stats,
		levels:      deps.Levels,
		schemas:     deps.Schemas,
		location:    deps.Location,
		idempotency: newIdempotencyStore(idempotencyTTL),
		logger:      deps.Logger,
	}
}

type errorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorPayload{Code: code, Message: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// readBody returns the raw request body, capped at maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errInvalidPayload
	}
	return body, nil
}

func decodeJSON(body []byte, value any) error {
	if err := json.Unmarshal(body, value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// validateBody writes a 400 and returns false when body violates the schema.
func (api *API) validateBody(w http.ResponseWriter, name schema.Name, body []byte) bool {
	err := api.schemas.Validate(name, body)
	if err == nil {
		return true
	}
	var schemaErr *schema.Error
	if errors.As(err, &schemaErr) {
		writeError(w, http.StatusBadRequest, "BadRequest", schemaErr.Error())
		return false
	}
	api.logger.Error("schema validation failed", zap.String("schema", string(name)), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "InternalError", "Failed to validate request")
	return false
}

// caller returns the resolved user or writes 401 with the given envelope.
func caller(w http.ResponseWriter, r *http.Request, code, message string) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, code, message)
		return "", false
	}
	return userID, true
}

func requestLogger(logger *zap.Logger, r *http.Request) *zap.Logger {
	return logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))
}

type idempotencyEntry struct {
	PayloadHash uint64
	ReportID    string
	CreatedAt   time.Time
	// done is closed once the owning request completes or releases the key.
	done chan struct{}
}

func (e idempotencyEntry) pending() bool {
	return e.ReportID == ""
}

type idempotencyOutcome int

const (
	// idempotencyOwner means the caller reserved the key and must Complete or
	// Release it.
	idempotencyOwner idempotencyOutcome = iota
	idempotencyReplay
	idempotencyConflict
)

// idempotencyStore reserves a key before the report is created, so concurrent
// retries with the same key wait for the first one instead of creating twice.
type idempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		ttl:     ttl,
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

// Reserve claims key for payloadHash. A pending reservation with the same
// payload blocks until it settles or ctx ends.
func (s *idempotencyStore) Reserve(ctx context.Context, key string, payloadHash uint64) (idempotencyOutcome, string, error) {
	for {
		s.mu.Lock()
		s.pruneLocked()
		entry, exists := s.entries[key]
		if !exists {
			s.entries[key] = idempotencyEntry{
				PayloadHash: payloadHash,
				CreatedAt:   s.now().UTC(),
				done:        make(chan struct{}),
			}
			s.mu.Unlock()
			return idempotencyOwner, "", nil
		}
		s.mu.Unlock()

		if entry.PayloadHash != payloadHash {
			return idempotencyConflict, "", nil
		}
		if !entry.pending() {
			return idempotencyReplay, entry.ReportID, nil
		}

		select {
		case <-entry.done:
		case <-ctx.Done():
			return 0, "", ctx.Err()
		}
	}
}

func (s *idempotencyStore) Complete(key string, reportID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[key]
	if !exists || !entry.pending() {
		return
	}
	entry.ReportID = reportID
	s.entries[key] = entry
	close(entry.done)
}

// Release drops a pending reservation so a waiting retry can take it over.
func (s *idempotencyStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[key]
	if !exists || !entry.pending() {
		return
	}
	delete(s.entries, key)
	close(entry.done)
}

// pruneLocked drops settled entries older than ttl. Pending ones stay until
// their owner settles them.
func (s *idempotencyStore) pruneLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if !entry.pending() && now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, key)
		}
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
