package repositories

import (
	"context"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, telegram_user_id, username, first_name, last_name, created_at, last_active_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramUserID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt, &u.LastActiveAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpsertByTelegramID вызывается на каждом логине: пустые поля initData
// не затирают сохранённые.
func (r *UserRepo) UpsertByTelegramID(ctx context.Context, telegramID int64, username, firstName, lastName *string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_user_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			first_name = COALESCE(EXCLUDED.first_name, users.first_name),
			last_name = COALESCE(EXCLUDED.last_name, users.last_name),
			last_active_at = now()
		RETURNING `+userColumns,
		telegramID, username, firstName, lastName,
	))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_user_id = $1`, telegramID))
}

func (r *UserRepo) UpdateLastActive(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = now() WHERE id = $1`, id)
	return err
}
