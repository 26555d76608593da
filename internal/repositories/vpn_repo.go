package repositories

import (
	"context"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VpnRepo struct {
	pool *pgxpool.Pool
}

func NewVpnRepo(pool *pgxpool.Pool) *VpnRepo {
	return &VpnRepo{pool: pool}
}

func (r *VpnRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.VpnConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, uuid, vpn_domain, flow, email, country, is_active, created_at, deleted_at
		FROM vpn_configs
		WHERE user_id = $1 AND is_active AND deleted_at IS NULL
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []models.VpnConfig
	for rows.Next() {
		var c models.VpnConfig
		if err := rows.Scan(&c.ID, &c.UserID, &c.UUID, &c.VpnDomain, &c.Flow, &c.Email, &c.Country,
			&c.IsActive, &c.CreatedAt, &c.DeletedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
