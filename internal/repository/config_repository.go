package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rm-info/finding-memos/internal/model"
)

// ConfigRepo reads and writes the singleton auth config row (id=1).
// allowed_domains is stored as a JSON array, matching the original
// schema, so existing databases keep working.
type ConfigRepo struct{ DB *sql.DB }

func NewConfigRepo(db *sql.DB) *ConfigRepo { return &ConfigRepo{DB: db} }

// Load returns the auth config. A missing row defaults to auth enabled
// with unrestricted domains, the safe interpretation for a fresh install.
func (r *ConfigRepo) Load(ctx context.Context) (model.AuthConfig, error) {
	var (
		enabled bool
		domains string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT enable_auth, allowed_domains FROM config WHERE id=1").
		Scan(&enabled, &domains)
	if err == sql.ErrNoRows {
		return model.AuthConfig{EnableAuth: true}, nil
	}
	if err != nil {
		return model.AuthConfig{}, err
	}
	cfg := model.AuthConfig{EnableAuth: enabled}
	if domains != "" {
		if err := json.Unmarshal([]byte(domains), &cfg.AllowedDomains); err != nil {
			return model.AuthConfig{}, err
		}
	}
	return cfg, nil
}

// Save upserts the singleton row. Callers must invalidate the config
// cache afterwards.
func (r *ConfigRepo) Save(ctx context.Context, cfg model.AuthConfig) error {
	domains, err := json.Marshal(cfg.AllowedDomains)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO config (id, enable_auth, allowed_domains) VALUES (1,?,?)
		 ON DUPLICATE KEY UPDATE enable_auth=VALUES(enable_auth), allowed_domains=VALUES(allowed_domains)`,
		cfg.EnableAuth, string(domains))
	return err
}
