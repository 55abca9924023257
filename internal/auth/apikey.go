package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/nikhilbhutani/payrollflow/internal/principal"
)

var ErrKeyNotFound = errors.New("api key not found")

// KeyStore finds API keys by the hash of their plaintext.
type KeyStore interface {
	FindByHash(ctx context.Context, hash string) (*models.APIKey, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

type APIKeyMiddleware struct {
	keys       KeyStore
	users      UserLookup
	headerName string
}

func NewAPIKeyMiddleware(keys KeyStore, users UserLookup, headerName string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		keys:       keys,
		users:      users,
		headerName: headerName,
	}
}

// Authenticate resolves the API key header when present and passes the
// request through untouched when it is absent.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(m.headerName)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		hash := HashAPIKey(key)
		ak, err := m.keys.FindByHash(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if subtle.ConstantTimeCompare([]byte(ak.KeyHash), []byte(hash)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if ak.ExpiresAt != nil && ak.ExpiresAt.Before(time.Now()) {
			writeError(w, http.StatusUnauthorized, "API key expired")
			return
		}

		user, err := m.users.Get(r.Context(), ak.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "user not found")
			return
		}

		go func(id uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.keys.Touch(ctx, id); err != nil {
				slog.Warn("failed to update api key last_used_at", "key_id", id, "error", err)
			}
		}(ak.ID)

		ctx := principal.WithPrincipal(r.Context(), user.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GenerateAPIKey returns a new plaintext key. Only its hash is stored.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "pfk_" + hex.EncodeToString(b), nil
}

// PGKeyStore keeps API keys in the api_keys table.
type PGKeyStore struct {
	db *pgxpool.Pool
}

func NewPGKeyStore(db *pgxpool.Pool) *PGKeyStore {
	return &PGKeyStore{db: db}
}

func (s *PGKeyStore) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var ak models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, key_hash, name, last_used_at, expires_at, created_at
		 FROM api_keys WHERE key_hash = $1`, hash,
	).Scan(&ak.ID, &ak.UserID, &ak.KeyHash, &ak.Name, &ak.LastUsedAt, &ak.ExpiresAt, &ak.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find api key: %w", err)
	}
	return &ak, nil
}

func (s *PGKeyStore) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, "UPDATE api_keys SET last_used_at = now() WHERE id = $1", id)
	return err
}

// Create stores a new key for userID and returns its plaintext once.
func (s *PGKeyStore) Create(ctx context.Context, userID uuid.UUID, name string, expiresAt *time.Time) (string, *models.APIKey, error) {
	plain, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	ak := models.APIKey{UserID: userID, KeyHash: HashAPIKey(plain), Name: name, ExpiresAt: expiresAt}
	err = s.db.QueryRow(ctx,
		`INSERT INTO api_keys (user_id, key_hash, name, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		ak.UserID, ak.KeyHash, ak.Name, ak.ExpiresAt,
	).Scan(&ak.ID, &ak.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}
	return plain, &ak, nil
}
