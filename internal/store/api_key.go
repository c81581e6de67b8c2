package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/dukerupert/billow/internal/model"
)

const (
	keyPrefix    = "bk_"
	keyBytes     = 24
	keyPrefixLen = len(keyPrefix) + 8
)

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

func scanAPIKey(scanner interface{ Scan(...any) error }) (*model.APIKey, error) {
	var k model.APIKey
	var lastUsedAt sql.NullTime
	err := scanner.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.Prefix, &lastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	return &k, nil
}

const apiKeyCols = `id, organization_id, name, prefix, last_used_at, created_at`

// generateAPIKey creates a key in the format bk_<48 hex chars>.
func generateAPIKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(b), nil
}

// HashAPIKey returns the stored form of a plaintext key.
func HashAPIKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Create issues a new key for the organization. The plaintext key is
// returned once and never stored.
func (s *APIKeyStore) Create(ctx context.Context, orgID, name string) (*model.APIKey, string, error) {
	key, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}

	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, organization_id, name, prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, orgID, name, key[:keyPrefixLen], HashAPIKey(key), now(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	k, err := s.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, "", err
	}
	return k, key, nil
}

func (s *APIKeyStore) GetByID(ctx context.Context, orgID, id string) (*model.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE organization_id = ? AND id = ?`, orgID, id)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

// Authenticate looks up a plaintext key and records its use. It returns nil
// for an unknown key.
func (s *APIKeyStore) Authenticate(ctx context.Context, key string) (*model.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE key_hash = ?`, HashAPIKey(key))
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}

	used := now()
	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, used, k.ID); err != nil {
		return nil, fmt.Errorf("touch api key: %w", err)
	}
	k.LastUsedAt = &used
	return k, nil
}

func (s *APIKeyStore) List(ctx context.Context, orgID string) ([]model.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE organization_id = ? ORDER BY created_at, rowid`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (s *APIKeyStore) Delete(ctx context.Context, orgID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
