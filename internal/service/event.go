package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/metrics"
	"levelup-engine/internal/model"
	"levelup-engine/internal/pkg/lock"
	"levelup-engine/internal/repository"
)

const unknownUser = "Unknown User"

// Rule skip reasons.
const (
	skipConditions = "conditions"
	skipCooldown   = "cooldown"
	skipDailyCap   = "daily_cap"
)

// Profile is display metadata for a platform user.
type Profile struct {
	Username  string
	AvatarURL *string
}

// ProfileResolver looks up display metadata for a platform user.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID string) (*Profile, error)
}

// Granter applies one XP grant.
type Granter interface {
	Grant(ctx context.Context, p GrantParams) GrantResult
}

// EventOptions holds event matcher settings.
type EventOptions struct {
	Actions     map[string]string
	LockTimeout time.Duration
	Location    *time.Location
}

// EventService turns inbound activity events into XP grants.
type EventService struct {
	members  MemberStore
	rules    RuleStore
	ledger   LedgerStore
	granter  Granter
	profiles ProfileResolver
	locks    *lock.KeyLock
	metrics  *metrics.Metrics
	opts     EventOptions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEventService creates a new EventService instance. profiles may be nil.
func NewEventService(
	members MemberStore,
	rules RuleStore,
	ledger LedgerStore,
	granter Granter,
	profiles ProfileResolver,
	locks *lock.KeyLock,
	m *metrics.Metrics,
	opts EventOptions,
	logger zerolog.Logger,
) *EventService {
	if opts.Actions == nil {
		opts.Actions = model.DefaultActionMap()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &EventService{
		members:  members,
		rules:    rules,
		ledger:   ledger,
		granter:  granter,
		profiles: profiles,
		locks:    locks,
		metrics:  m,
		opts:     opts,
		logger:   logger.With().Str("component", "event-handler").Logger(),
		now:      time.Now,
	}
}

// Handle processes one activity event. Unmapped actions and events without
// active rules are ignored.
func (s *EventService) Handle(ctx context.Context, ev model.ActivityEvent) error {
	eventType, ok := s.opts.Actions[ev.Action]
	if !ok {
		s.logger.Debug().Str("action", ev.Action).Msg("Ignoring unmapped event")
		return nil
	}

	companyID := field(ev.Data, "company_id", "companyId")
	userID := field(ev.Data, "user_id", "userId")

	if eventType == model.EventMemberLeft {
		return s.memberLeft(ctx, companyID, userID)
	}

	if companyID == "" {
		return missing("company id")
	}
	if userID == "" {
		return missing("user id")
	}

	rules, err := s.rules.ActiveRules(ctx, companyID, eventType)
	if err != nil {
		return fmt.Errorf("%w: failed to load rules: %w", ErrPersistence, err)
	}
	if len(rules) == 0 {
		s.logger.Debug().Str("event_type", eventType).Str("company_id", companyID).Msg("No active rules for event")
		return nil
	}

	member, err := s.resolveMember(ctx, ev.Data, companyID, userID)
	if err != nil {
		return err
	}

	return s.locks.WithLock(ctx, member.ID, s.opts.LockTimeout, func() error {
		return s.applyRules(ctx, member, eventType, rules, ev.Data)
	})
}

// applyRules gates every rule against the ledger as it was before this event,
// then grants for the rules that passed.
func (s *EventService) applyRules(ctx context.Context, member *model.Member, eventType string, rules []model.XPRule, data map[string]any) error {
	var passed []model.XPRule
	for _, rule := range rules {
		reason, err := s.gate(ctx, member.ID, eventType, rule, data)
		if err != nil {
			return err
		}
		if reason != "" {
			s.metrics.RuleSkipped(reason)
			s.logger.Debug().Str("rule", rule.Name).Str("reason", reason).Str("member_id", member.ID).Msg("Rule skipped")
			continue
		}
		passed = append(passed, rule)
	}

	var errs []error
	for _, rule := range passed {
		res := s.granter.Grant(ctx, GrantParams{
			MemberID:  member.ID,
			Amount:    rule.XPAmount,
			Reason:    rule.Name,
			EventType: eventType,
			Metadata:  data,
		})
		if !res.Success {
			s.logger.Warn().Err(res.Err).Str("rule", rule.Name).Str("member_id", member.ID).Msg("Rule grant failed")
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// gate returns the reason a rule does not fire, or "" when it does.
func (s *EventService) gate(ctx context.Context, memberID, eventType string, rule model.XPRule, data map[string]any) (string, error) {
	if !rule.Conditions.Match(data) {
		return skipConditions, nil
	}

	now := s.now()
	if rule.CooldownSeconds > 0 {
		last, err := s.ledger.LastTransactionAt(ctx, memberID, eventType)
		if err != nil {
			return "", fmt.Errorf("%w: failed to check cooldown: %w", ErrPersistence, err)
		}
		if last != nil && now.Sub(*last) < rule.Cooldown() {
			return skipCooldown, nil
		}
	}

	if rule.MaxPerDay > 0 {
		local := now.In(s.opts.Location)
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location)
		count, err := s.ledger.CountTransactions(ctx, memberID, eventType, &dayStart)
		if err != nil {
			return "", fmt.Errorf("%w: failed to check daily cap: %w", ErrPersistence, err)
		}
		if count >= int64(rule.MaxPerDay) {
			return skipDailyCap, nil
		}
	}
	return "", nil
}

func (s *EventService) resolveMember(ctx context.Context, data map[string]any, companyID, userID string) (*model.Member, error) {
	identity := model.MemberIdentity{
		ExternalUserID: userID,
		CompanyID:      companyID,
		MembershipID:   field(data, "membership_id", "membershipId"),
		DisplayName:    field(data, "user_name", "username"),
	}
	if identity.MembershipID == "" {
		identity.MembershipID = "unknown"
	}

	// Display metadata only matters at creation, so known members skip the lookup.
	existing, err := s.members.FindByExternal(ctx, userID, companyID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrMemberNotFound):
		return nil, fmt.Errorf("%w: failed to find member: %w", ErrPersistence, err)
	}

	if s.profiles != nil {
		p, err := s.profiles.Resolve(ctx, userID)
		switch {
		case err != nil:
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("Profile lookup failed")
		case p != nil:
			if p.Username != "" {
				identity.DisplayName = p.Username
			}
			identity.AvatarURL = p.AvatarURL
		}
	}
	if identity.DisplayName == "" {
		identity.DisplayName = unknownUser
	}

	member, created, err := s.members.UpsertMember(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve member: %w", ErrPersistence, err)
	}
	if created {
		s.logger.Info().Str("member_id", member.ID).Str("company_id", companyID).Msg("Member created")
	}
	return member, nil
}

func (s *EventService) memberLeft(ctx context.Context, companyID, userID string) error {
	if companyID == "" || userID == "" {
		return nil
	}
	member, err := s.members.FindByExternal(ctx, userID, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil
		}
		return fmt.Errorf("%w: failed to find member: %w", ErrPersistence, err)
	}
	s.logger.Info().Str("member_id", member.ID).Str("display_name", member.DisplayName).Msg("Member left, data retained")
	return nil
}

// HandleBatch processes events concurrently. Failures are logged per event.
func (s *EventService) HandleBatch(ctx context.Context, events []model.ActivityEvent) {
	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func(ev model.ActivityEvent) {
			defer wg.Done()
			if err := s.Handle(ctx, ev); err != nil {
				s.logger.Error().Err(err).Str("action", ev.Action).Msg("Event handling failed")
			}
		}(ev)
	}
	wg.Wait()
}

// field returns the first non-empty value among keys, as a string.
func field(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// EventStats aggregates the company's ledger activity per event type over the
// trailing number of days.
func (s *EventService) EventStats(ctx context.Context, companyID string, days int) (map[string]model.EventStat, error) {
	if companyID == "" {
		return nil, missing("company id")
	}
	if days < 1 {
		days = 7
	}
	stats, err := s.ledger.EventStats(ctx, companyID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get event stats: %w", ErrPersistence, err)
	}
	return stats, nil
}
