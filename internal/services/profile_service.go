package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/auth"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/fast-rabbit/vpn-backend/internal/vpn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProfileService struct {
	users   UserStore
	ledger  LedgerStore
	vpn     VpnStore
	reality vpn.Reality
	log     *zap.Logger
}

func NewProfileService(
	users UserStore,
	ledger LedgerStore,
	vpnStore VpnStore,
	reality vpn.Reality,
	log *zap.Logger,
) *ProfileService {
	return &ProfileService{
		users:   users,
		ledger:  ledger,
		vpn:     vpnStore,
		reality: reality,
		log:     log,
	}
}

// Login создаёт пользователя при первом входе и возвращает профиль.
func (s *ProfileService) Login(ctx context.Context, tgUser *auth.TelegramUser) (*models.Profile, error) {
	if tgUser == nil || tgUser.ID == 0 {
		return nil, ValidationError("telegram user is required")
	}
	user, err := s.users.UpsertByTelegramID(ctx, tgUser.ID,
		optional(tgUser.Username), optional(tgUser.FirstName), optional(tgUser.LastName))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.build(ctx, user)
}

func (s *ProfileService) Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.users.UpdateLastActive(ctx, user.ID); err != nil {
		s.log.Warn("failed to update last_active", zap.Error(err))
	}
	return s.build(ctx, user)
}

func (s *ProfileService) Ledger(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	return s.ledger.ListByUser(ctx, userID, limit, offset)
}

func (s *ProfileService) build(ctx context.Context, user *models.User) (*models.Profile, error) {
	balance, err := s.ledger.Balance(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	configs, err := s.vpn.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list vpn configs: %w", err)
	}
	return &models.Profile{
		User:    *user,
		Balance: models.Balance{Balance: balance},
		Keys:    s.reality.Keys(configs),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
