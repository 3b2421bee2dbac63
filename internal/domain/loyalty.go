package domain

import "time"

type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "bronze"
	TierSilver   LoyaltyTier = "silver"
	TierGold     LoyaltyTier = "gold"
	TierPlatinum LoyaltyTier = "platinum"
)

const (
	LoyaltyEntryEarn       = "earn"
	LoyaltyEntryRedemption = "redemption"
	LoyaltyEntryAdjustment = "adjustment"
)

const DefaultPointsDivisor = 100

type LoyaltyAccount struct {
	ID             string      `json:"id"`
	CustomerID     string      `json:"customer_id"`
	PointsBalance  int         `json:"points_balance"`
	LifetimePoints int         `json:"lifetime_points"`
	Tier           LoyaltyTier `json:"tier"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// LoyaltyTransaction is one append-only ledger row. Points are signed.
type LoyaltyTransaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"loyalty_account_id"`
	Type        string    `json:"type"`
	Points      int       `json:"points"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Reward struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PointsCost  int       `json:"points_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type RewardCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	PointsCost  int    `json:"points_cost" validate:"required,min=1"`
}

type RedeemRequest struct {
	RewardID string `json:"reward_id" validate:"required"`
}

type PointsAdjustRequest struct {
	Points int    `json:"points" validate:"required,ne=0"`
	Note   string `json:"note" validate:"required,max=500"`
}

type LoyaltyConfig struct {
	PointsDivisor     int       `json:"points_divisor" validate:"min=1"`
	SilverThreshold   int       `json:"silver_threshold" validate:"min=0"`
	GoldThreshold     int       `json:"gold_threshold" validate:"gtfield=SilverThreshold"`
	PlatinumThreshold int       `json:"platinum_threshold" validate:"gtfield=GoldThreshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		PointsDivisor:     DefaultPointsDivisor,
		SilverThreshold:   500,
		GoldThreshold:     2000,
		PlatinumThreshold: 5000,
	}
}

// TierFor maps lifetime points to a tier using the configured thresholds.
func (c LoyaltyConfig) TierFor(lifetimePoints int) LoyaltyTier {
	switch {
	case lifetimePoints >= c.PlatinumThreshold:
		return TierPlatinum
	case lifetimePoints >= c.GoldThreshold:
		return TierGold
	case lifetimePoints >= c.SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

type LoyaltyStats struct {
	TotalPointsDistributed int64 `json:"total_points_distributed"`
	RewardsRedeemed        int64 `json:"rewards_redeemed"`
	ActiveMembers          int64 `json:"active_members"`
}

type LoyaltyAccountResponse struct {
	Account LoyaltyAccount       `json:"account"`
	Ledger  []LoyaltyTransaction `json:"ledger,omitempty"`
}
