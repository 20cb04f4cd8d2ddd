// Package model defines the data models for the XP engine.
package model

import "time"

// Member is a community member's XP aggregate within one company.
// TotalXP only grows through XP grants; Level and CurrentLevelXP are derived from it.
type Member struct {
	ID             string     `json:"id" db:"id"`
	CompanyID      string     `json:"companyId" db:"company_id"`
	ExternalUserID string     `json:"externalUserId" db:"external_user_id"`
	MembershipID   string     `json:"membershipId" db:"membership_id"`
	DisplayName    string     `json:"displayName" db:"display_name"`
	AvatarURL      *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	TotalXP        int64      `json:"totalXP" db:"total_xp"`
	Level          int        `json:"level" db:"level"`
	CurrentLevelXP int64      `json:"currentLevelXP" db:"current_level_xp"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty" db:"last_activity_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// MemberIdentity carries what is needed to create a member on its first event.
// Display fields are only applied at creation time.
type MemberIdentity struct {
	ExternalUserID string
	CompanyID      string
	MembershipID   string
	DisplayName    string
	AvatarURL      *string
}

// XPTransaction is an immutable ledger entry. Amount is the raw granted delta.
type XPTransaction struct {
	ID        string         `json:"id" db:"id"`
	MemberID  string         `json:"memberId" db:"member_id"`
	Amount    int64          `json:"amount" db:"amount"`
	Reason    string         `json:"reason" db:"reason"`
	EventType string         `json:"eventType" db:"event_type"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// XPRule maps an activity event type to an XP grant with gating.
type XPRule struct {
	ID              string     `json:"id" db:"id"`
	CompanyID       string     `json:"companyId" db:"company_id"`
	Name            string     `json:"name" db:"name"`
	EventType       string     `json:"eventType" db:"event_type"`
	XPAmount        int64      `json:"xpAmount" db:"xp_amount"`
	CooldownSeconds int        `json:"cooldown" db:"cooldown_seconds"`
	MaxPerDay       int        `json:"maxPerDay" db:"max_per_day"`
	IsActive        bool       `json:"isActive" db:"is_active"`
	Conditions      Conditions `json:"conditions,omitempty" db:"conditions"`
}

// Cooldown returns the rule cooldown as a duration.
func (r *XPRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// Badge is an achievement awarded once its requirement is satisfied.
type Badge struct {
	ID          string      `json:"id" db:"id"`
	CompanyID   string      `json:"companyId" db:"company_id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description" db:"description"`
	ImageURL    string      `json:"imageUrl" db:"image_url"`
	Rarity      string      `json:"rarity" db:"rarity"`
	Requirement Requirement `json:"requirement" db:"requirement"`
	IsActive    bool        `json:"isActive" db:"is_active"`
	IsSecret    bool        `json:"isSecret" db:"is_secret"`
}

// MemberBadge records that a member earned a badge. At most one per (member, badge).
type MemberBadge struct {
	MemberID string    `json:"memberId" db:"member_id"`
	BadgeID  string    `json:"badgeId" db:"badge_id"`
	EarnedAt time.Time `json:"earnedAt" db:"earned_at"`
}

// EarnedBadge is a badge together with the time the member earned it.
type EarnedBadge struct {
	Badge
	EarnedAt time.Time `json:"earnedAt"`
}

// Badge rarities.
const (
	RarityCommon    = "common"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Reward is a perk a member can claim once requirements are met.
type Reward struct {
	ID             string         `json:"id" db:"id"`
	CompanyID      string         `json:"companyId" db:"company_id"`
	Name           string         `json:"name" db:"name"`
	Description    string         `json:"description" db:"description"`
	Type           string         `json:"type" db:"type"`
	Config         map[string]any `json:"config" db:"config"`
	RequiredLevel  *int           `json:"requiredLevel,omitempty" db:"required_level"`
	RequiredXP     *int64         `json:"requiredXP,omitempty" db:"required_xp"`
	RequiredBadges []string       `json:"requiredBadges,omitempty" db:"required_badges"`
	IsActive       bool           `json:"isActive" db:"is_active"`
	IsRepeatable   bool           `json:"isRepeatable" db:"is_repeatable"`
	CooldownDays   int            `json:"cooldownDays" db:"cooldown_days"`
}

// RewardClaim tracks one attempt to claim a reward.
type RewardClaim struct {
	ID        string    `json:"id" db:"id"`
	MemberID  string    `json:"memberId" db:"member_id"`
	RewardID  string    `json:"rewardId" db:"reward_id"`
	Status    string    `json:"status" db:"status"`
	ClaimedAt time.Time `json:"claimedAt" db:"claimed_at"`
}

// Reward claim statuses.
const (
	ClaimPending   = "pending"
	ClaimCompleted = "completed"
	ClaimFailed    = "failed"
)

// Reward types with built-in handlers.
const (
	RewardRole         = "role"
	RewardFreeDays     = "free_days"
	RewardDiscountCode = "discount_code"
	RewardCustom       = "custom"
)

// Internal event types that XP rules react to.
const (
	EventMessageCreated    = "message.created"
	EventPurchaseCompleted = "purchase.completed"
	EventCourseCompleted   = "course.completed"
	EventMemberJoined      = "member.joined"
	EventMemberLeft        = "member.left"
	EventManualGrant       = "manual.grant"
)

// DefaultActionMap maps inbound webhook actions to internal event types.
func DefaultActionMap() map[string]string {
	return map[string]string{
		"message.created":          EventMessageCreated,
		"payment.succeeded":        EventPurchaseCompleted,
		"course.section_completed": EventCourseCompleted,
		"membership.created":       EventMemberJoined,
		"membership.deleted":       EventMemberLeft,
	}
}

// ActivityEvent is an inbound activity notification.
type ActivityEvent struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

// EventStat aggregates ledger activity for one event type.
type EventStat struct {
	Count   int64 `json:"count"`
	TotalXP int64 `json:"totalXP"`
}

// LeaderboardEntry is one ranked row of a leaderboard. Rank is 1-based and positional.
type LeaderboardEntry struct {
	MemberID    string  `json:"memberId"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	TotalXP     int64   `json:"totalXP"`
	Level       int     `json:"level"`
	WeeklyXP    int64   `json:"weeklyXP,omitempty"`
	BadgeCount  int     `json:"badgeCount,omitempty"`
	Rank        int     `json:"rank"`
}

// Leaderboard ranking types.
const (
	RankTotalXP      = "total_xp"
	RankLevel        = "level"
	RankWeeklyXP     = "weekly_xp"
	RankBadgesEarned = "badges_earned"
)

// Leaderboard timeframes.
const (
	TimeframeAllTime = "all_time"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
)
