// Package notify delivers member-facing announcements.
package notify

import (
	"context"
	"fmt"
	"strings"

	"levelup-engine/internal/model"
)

// Notification is one announcement for a member.
type Notification struct {
	UserID      string
	DisplayName string
	Title       string
	Message     string
	Link        string
}

// Notifier delivers a notification to one channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LevelUp builds the announcement for reaching a new level.
func LevelUp(m *model.Member, level int, baseURL string) Notification {
	return Notification{
		UserID:      m.ExternalUserID,
		DisplayName: m.DisplayName,
		Title:       fmt.Sprintf("🎉 Level Up! You're now Level %d!", level),
		Message:     fmt.Sprintf("Congratulations! You've reached Level %d. Keep up the great work!", level),
		Link:        baseURL + "/members/" + m.ID,
	}
}

// BadgesEarned builds the announcement for newly earned badges.
// It returns false when there is nothing to announce.
func BadgesEarned(m *model.Member, badges []model.Badge, baseURL string) (Notification, bool) {
	n := Notification{
		UserID:      m.ExternalUserID,
		DisplayName: m.DisplayName,
		Link:        baseURL + "/badges",
	}

	switch len(badges) {
	case 0:
		return Notification{}, false
	case 1:
		n.Title = fmt.Sprintf("🏆 Badge Earned: %s!", badges[0].Name)
		n.Message = badges[0].Description
	default:
		names := make([]string, len(badges))
		for i, b := range badges {
			names[i] = b.Name
		}
		n.Title = fmt.Sprintf("🏆 %d Badges Earned!", len(badges))
		n.Message = "You've earned: " + strings.Join(names, ", ")
	}
	return n, true
}

// RewardClaimed builds the confirmation for a fulfilled reward claim.
func RewardClaimed(m *model.Member, reward *model.Reward, baseURL string) Notification {
	return Notification{
		UserID:      m.ExternalUserID,
		DisplayName: m.DisplayName,
		Title:       "🎁 Reward Claimed!",
		Message:     fmt.Sprintf("You've claimed: %s.", reward.Name),
		Link:        baseURL + "/rewards",
	}
}
