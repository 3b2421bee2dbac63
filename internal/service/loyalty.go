package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/xid"
)

// authorizeAccount lets customers reach only the account bound to their
// login. Staff holding perm may reach any account.
func (s *Service) authorizeAccount(ctx context.Context, customerID string, perm domain.Permission) (domain.Actor, error) {
	actor, err := s.authorize(ctx, perm)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role == domain.RoleCustomer && actor.CustomerID != customerID {
		return domain.Actor{}, fmt.Errorf("%w: customers may only access their own loyalty account", domain.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) GetLoyaltyAccount(ctx context.Context, customerID string) (domain.LoyaltyAccountResponse, error) {
	customerID = strings.TrimSpace(customerID)
	if _, err := s.authorizeAccount(ctx, customerID, domain.PermViewOwnLoyalty); err != nil {
		return domain.LoyaltyAccountResponse{}, err
	}
	account, err := s.repo.GetLoyaltyAccount(ctx, customerID)
	if err != nil {
		return domain.LoyaltyAccountResponse{}, err
	}
	return domain.LoyaltyAccountResponse{Account: *account}, nil
}

func (s *Service) ListLoyaltyLedger(ctx context.Context, customerID string, limit int) (domain.LoyaltyAccountResponse, error) {
	customerID = strings.TrimSpace(customerID)
	if _, err := s.authorizeAccount(ctx, customerID, domain.PermViewOwnLoyalty); err != nil {
		return domain.LoyaltyAccountResponse{}, err
	}
	account, err := s.repo.GetLoyaltyAccount(ctx, customerID)
	if err != nil {
		return domain.LoyaltyAccountResponse{}, err
	}
	ledger, err := s.repo.ListLoyaltyTransactions(ctx, account.ID, clampLimit(limit))
	if err != nil {
		return domain.LoyaltyAccountResponse{}, err
	}
	return domain.LoyaltyAccountResponse{Account: *account, Ledger: ledger}, nil
}

// RedeemReward debits the reward's cost. The store refuses the debit when the
// balance cannot cover it.
func (s *Service) RedeemReward(ctx context.Context, customerID string, req domain.RedeemRequest) (domain.LoyaltyAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if _, err := s.authorizeAccount(ctx, customerID, domain.PermViewOwnLoyalty); err != nil {
		return domain.LoyaltyAccount{}, err
	}
	reward, err := s.repo.GetReward(ctx, strings.TrimSpace(req.RewardID))
	if err != nil {
		return domain.LoyaltyAccount{}, fmt.Errorf("reward %s: %w", req.RewardID, err)
	}
	if !reward.Active {
		return domain.LoyaltyAccount{}, invalidInput("reward %s is not active", reward.ID)
	}

	account, err := s.repo.ApplyLoyaltyEntry(ctx, customerID, domain.LoyaltyTransaction{
		ID:          xid.New("lt"),
		Type:        domain.LoyaltyEntryRedemption,
		Points:      -reward.PointsCost,
		ReferenceID: reward.ID,
		Note:        "Redeemed " + reward.Name,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}
	s.logAudit(ctx, "loyalty_redeem", "loyalty_account", account.ID, fmt.Sprintf("reward=%s,points=%d", reward.ID, reward.PointsCost))
	s.invalidate(ctx, loyaltyStatsKey)
	return *account, nil
}

func (s *Service) AdjustPoints(ctx context.Context, customerID string, req domain.PointsAdjustRequest) (domain.LoyaltyAccount, error) {
	if _, err := s.authorize(ctx, domain.PermManageLoyalty); err != nil {
		return domain.LoyaltyAccount{}, err
	}
	customerID = strings.TrimSpace(customerID)
	note := strings.TrimSpace(req.Note)
	if req.Points == 0 {
		return domain.LoyaltyAccount{}, invalidInput("adjustment must be non-zero")
	}
	if note == "" {
		return domain.LoyaltyAccount{}, invalidInput("adjustment note is required")
	}

	account, err := s.repo.ApplyLoyaltyEntry(ctx, customerID, domain.LoyaltyTransaction{
		ID:        xid.New("lt"),
		Type:      domain.LoyaltyEntryAdjustment,
		Points:    req.Points,
		Note:      note,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}
	s.logAudit(ctx, "loyalty_adjust", "loyalty_account", account.ID, fmt.Sprintf("points=%d", req.Points))
	s.invalidate(ctx, loyaltyStatsKey)
	return *account, nil
}

// ListRewards shows active rewards to everyone and the full list to loyalty
// managers.
func (s *Service) ListRewards(ctx context.Context) ([]domain.Reward, error) {
	actor, err := s.authorize(ctx, domain.PermViewOwnLoyalty)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRewards(ctx, !actor.Role.Can(domain.PermManageLoyalty))
}

func (s *Service) CreateReward(ctx context.Context, req domain.RewardCreateRequest) (domain.Reward, error) {
	if _, err := s.authorize(ctx, domain.PermManageLoyalty); err != nil {
		return domain.Reward{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PointsCost < 1 {
		return domain.Reward{}, invalidInput("reward needs a name and a positive points cost")
	}
	reward, err := s.repo.CreateReward(ctx, domain.Reward{
		ID:          xid.New("rwd"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		PointsCost:  req.PointsCost,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Reward{}, err
	}
	s.logAudit(ctx, "reward_create", "reward", reward.ID, fmt.Sprintf("points_cost=%d", reward.PointsCost))
	return *reward, nil
}

func (s *Service) GetLoyaltyConfig(ctx context.Context) (domain.LoyaltyConfig, error) {
	if _, err := s.authorize(ctx, domain.PermViewOwnLoyalty); err != nil {
		return domain.LoyaltyConfig{}, err
	}
	return s.repo.GetLoyaltyConfig(ctx)
}

func (s *Service) UpdateLoyaltyConfig(ctx context.Context, cfg domain.LoyaltyConfig) (domain.LoyaltyConfig, error) {
	if _, err := s.authorize(ctx, domain.PermManageLoyalty); err != nil {
		return domain.LoyaltyConfig{}, err
	}
	if cfg.PointsDivisor < 1 || cfg.SilverThreshold < 0 || cfg.GoldThreshold <= cfg.SilverThreshold || cfg.PlatinumThreshold <= cfg.GoldThreshold {
		return domain.LoyaltyConfig{}, invalidInput("thresholds must increase and the divisor must be positive")
	}
	updated, err := s.repo.UpdateLoyaltyConfig(ctx, cfg)
	if err != nil {
		return domain.LoyaltyConfig{}, err
	}
	s.logAudit(ctx, "loyalty_config_update", "loyalty_config", "1", fmt.Sprintf(
		"divisor=%d,silver=%d,gold=%d,platinum=%d",
		updated.PointsDivisor, updated.SilverThreshold, updated.GoldThreshold, updated.PlatinumThreshold,
	))
	return updated, nil
}

// LoyaltyStats is served from cache for statsTTL; loyalty writes drop the
// cached copy.
func (s *Service) LoyaltyStats(ctx context.Context) (domain.LoyaltyStats, error) {
	if _, err := s.authorize(ctx, domain.PermManageLoyalty); err != nil {
		return domain.LoyaltyStats{}, err
	}

	var cached domain.LoyaltyStats
	if ok, err := s.cache.Get(ctx, loyaltyStatsKey, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", loyaltyStatsKey).Msg("loyalty stats cache read failed")
	}

	stats, err := s.repo.GetLoyaltyStats(ctx)
	if err != nil {
		return domain.LoyaltyStats{}, err
	}
	if err := s.cache.Set(ctx, loyaltyStatsKey, stats, s.statsTTL); err != nil {
		log.Warn().Err(err).Str("key", loyaltyStatsKey).Msg("loyalty stats cache write failed")
	}
	return stats, nil
}
