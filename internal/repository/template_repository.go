// internal/repository/template_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.MessageTemplate, error)
	// Resolve accepts a numeric id or a template name for a business.
	Resolve(ctx context.Context, businessID int, ref string) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, business_id, name, language, param_format, body_param_count, named_tokens, header_kind, buttons, created_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	var tokensJSON, buttonsJSON []byte
	err := row.Scan(&t.ID, &t.BusinessID, &t.Name, &t.Language, &t.ParamFormat,
		&t.BodyParamCount, &tokensJSON, &t.HeaderKind, &buttonsJSON, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(tokensJSON) > 0 {
		if err := json.Unmarshal(tokensJSON, &t.NamedTokens); err != nil {
			return nil, fmt.Errorf("decode template tokens: %w", err)
		}
	}
	if len(buttonsJSON) > 0 {
		if err := json.Unmarshal(buttonsJSON, &t.Buttons); err != nil {
			return nil, fmt.Errorf("decode template buttons: %w", err)
		}
	}
	return &t, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE id=$1`
	t, err := scanTemplate(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(strconv.Itoa(id))
		}
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepository) Resolve(ctx context.Context, businessID int, ref string) (*model.MessageTemplate, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return r.GetByID(ctx, id)
	}
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE business_id=$1 AND name=$2`
	t, err := scanTemplate(r.DB.QueryRowContext(ctx, query, businessID, ref))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(ref)
		}
		return nil, err
	}
	return t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
