// internal/repository/link_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

type LinkRepositoryInterface interface {
	InsertLinks(ctx context.Context, links []model.TrackedLink) error
	// Resolve returns the destination for a token and bumps the hit counter.
	Resolve(ctx context.Context, token string) (string, error)
}

type LinkRepository struct {
	DB *sql.DB
}

func (r *LinkRepository) InsertLinks(ctx context.Context, links []model.TrackedLink) error {
	if len(links) == 0 {
		return nil
	}
	values := make([]string, 0, len(links))
	args := make([]interface{}, 0, len(links)*4)
	for i, l := range links {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4))
		args = append(args, l.Token, l.CampaignID, l.RecipientID, l.Destination)
	}
	// Tokens are deterministic per recipient/destination, so a retried send
	// re-inserts the same rows; the conflict clause keeps them single.
	query := `
        INSERT INTO tracked_links (token, campaign_id, recipient_id, destination)
        VALUES ` + strings.Join(values, ", ") + `
        ON CONFLICT (token) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r *LinkRepository) Resolve(ctx context.Context, token string) (string, error) {
	var dest string
	err := r.DB.QueryRowContext(ctx, `
        UPDATE tracked_links SET hits = hits + 1 WHERE token=$1
        RETURNING destination
    `, token).Scan(&dest)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown tracking token %q", token)
	}
	return dest, err
}

var _ LinkRepositoryInterface = (*LinkRepository)(nil)
