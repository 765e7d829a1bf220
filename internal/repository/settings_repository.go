// internal/repository/settings_repository.go
package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

type SettingsRepositoryInterface interface {
	GetByBusinessID(ctx context.Context, businessID int) (*model.BusinessSettings, error)
}

type ContactRepositoryInterface interface {
	// GetByPhones returns known contacts keyed by normalized phone.
	GetByPhones(ctx context.Context, businessID int, phones []string) (map[string]model.Contact, error)
}

// SettingsRepository is the read-only provider settings lookup.
type SettingsRepository struct {
	DB *sql.DB
}

func (r *SettingsRepository) GetByBusinessID(ctx context.Context, businessID int) (*model.BusinessSettings, error) {
	var s model.BusinessSettings
	err := r.DB.QueryRowContext(ctx, `
        SELECT business_id, provider, sender_id FROM business_settings WHERE business_id=$1
    `, businessID).Scan(&s.BusinessID, &s.Provider, &s.SenderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrProviderNotConfigured
		}
		return nil, err
	}
	if strings.TrimSpace(s.Provider) == "" {
		return nil, appErrors.ErrProviderNotConfigured
	}
	return &s, nil
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByPhones(ctx context.Context, businessID int, phones []string) (map[string]model.Contact, error) {
	out := map[string]model.Contact{}
	if len(phones) == 0 {
		return out, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, business_id, phone, name FROM contacts
        WHERE business_id=$1 AND phone = ANY($2)
    `, businessID, pq.Array(phones))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.Phone, &c.Name); err != nil {
			return nil, err
		}
		out[c.Phone] = c
	}
	return out, rows.Err()
}

var (
	_ SettingsRepositoryInterface = (*SettingsRepository)(nil)
	_ ContactRepositoryInterface  = (*ContactRepository)(nil)
)
