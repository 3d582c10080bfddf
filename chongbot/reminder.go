package chongbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var (
	// ErrRoleNotConfigured indicates one of the raid eligibility roles
	// doesn't exist in the guild. A configuration error: the check run
	// reports zero eligible members rather than failing outright.
	ErrRoleNotConfigured = errors.New("raid role not configured")
)

// noChannelLinked is rendered in reminder messages when an event has
// no Discord channel attached.
const noChannelLinked = "Raid Helper (no Discord channel linked)"

// DispatchResult is the outcome of one attempted reminder delivery.
type DispatchResult struct {
	Success    bool   `json:"success"`
	Member     string `json:"member"`
	UserID     string `json:"user_id"`
	EventCount int    `json:"event_count"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SignupCheckResult summarizes one signup check run.
type SignupCheckResult struct {
	Success         bool             `json:"success"`
	TotalEvents     int              `json:"total_events"`
	ProcessedEvents int              `json:"processed_events"`
	TotalReminders  int              `json:"total_reminders"`
	TotalErrors     int              `json:"total_errors"`
	Note            string           `json:"note,omitempty"`
	Error           string           `json:"error,omitempty"`
	Results         []DispatchResult `json:"results"`
}

// SignupCheckInput carries everything ProcessSignupCheck needs,
// making the check runnable against live data, canned data, or test
// doubles alike.
type SignupCheckInput struct {
	Events          []Event
	EligibleMembers []*discordgo.Member
	Sender          ReminderSender

	// DryRun suppresses the inter-send delay; the Sender decides
	// whether any delivery actually happens
	DryRun bool

	// SendDelay is the pause between successive deliveries. Zero
	// means DefaultReminderSendDelay.
	SendDelay time.Duration

	Logger *slog.Logger
}

// ReminderSender delivers a consolidated reminder to one member.
// Implementations must convert delivery failures into a failed
// DispatchResult rather than panicking.
type ReminderSender interface {
	SendReminder(
		ctx context.Context,
		member *discordgo.Member,
		events []Event,
	) DispatchResult
}

// memberReminder accumulates the events one member is missing from.
type memberReminder struct {
	Member *discordgo.Member
	Events []Event
}

// raidEligibleMembers returns the deduplicated union of members
// holding either raid role. If either role ID doesn't resolve to a
// role in the guild's directory, it returns ErrRoleNotConfigured and
// no members.
func raidEligibleMembers(
	roles []*discordgo.Role,
	members []*discordgo.Member,
	raiderRoleID string,
	trialRoleID string,
) ([]*discordgo.Member, error) {
	var raiderFound, trialFound bool
	for _, role := range roles {
		if role.ID == raiderRoleID {
			raiderFound = true
		}
		if role.ID == trialRoleID {
			trialFound = true
		}
	}
	if !raiderFound || !trialFound {
		return nil, fmt.Errorf(
			"%w: raider=%s (found=%t) trial=%s (found=%t)",
			ErrRoleNotConfigured,
			raiderRoleID, raiderFound,
			trialRoleID, trialFound,
		)
	}

	seen := map[string]struct{}{}
	var eligible []*discordgo.Member
	for _, member := range members {
		if member.User == nil {
			continue
		}
		if !memberHasRole(member, raiderRoleID) && !memberHasRole(member, trialRoleID) {
			continue
		}
		if _, ok := seen[member.User.ID]; ok {
			continue
		}
		seen[member.User.ID] = struct{}{}
		eligible = append(eligible, member)
	}
	return eligible, nil
}

// findMissingSignups returns the eligible members whose ID is absent
// from the signup roster, preserving the input member order. Pure.
func findMissingSignups(
	eligibleMembers []*discordgo.Member,
	signups []Signup,
) []*discordgo.Member {
	signedUp := extractSignedUpUserIDs(signups)

	var missing []*discordgo.Member
	for _, member := range eligibleMembers {
		if member.User == nil {
			continue
		}
		if _, ok := signedUp[member.User.ID]; !ok {
			missing = append(missing, member)
		}
	}
	return missing
}

// aggregateMissingSignups groups missing sign-ups by member: each
// member gets one entry listing every event they're absent from, in
// the order the events were given (chronological, per the adapter's
// sort). Members missing nothing don't appear. Entry order follows
// first occurrence.
func aggregateMissingSignups(
	events []Event,
	eligibleMembers []*discordgo.Member,
) []*memberReminder {
	byMember := map[string]*memberReminder{}
	var ordered []*memberReminder

	for _, event := range events {
		missing := findMissingSignups(eligibleMembers, event.SignUps)
		for _, member := range missing {
			entry, ok := byMember[member.User.ID]
			if !ok {
				entry = &memberReminder{Member: member}
				byMember[member.User.ID] = entry
				ordered = append(ordered, entry)
			}
			entry.Events = append(entry.Events, event)
		}
	}
	return ordered
}

// formatEventDate renders an event start time (unix seconds) as a
// long date in the given zone, e.g. "Tuesday, November 14, 2023".
func formatEventDate(startTime int64, loc *time.Location) string {
	return time.Unix(startTime, 0).In(loc).Format("Monday, January 2, 2006")
}

// formatEventTime renders an event start time (unix seconds) as a
// 12-hour time with zone abbreviation, e.g. "2:13 PM PST".
func formatEventTime(startTime int64, loc *time.Location) string {
	return time.Unix(startTime, 0).In(loc).Format("3:04 PM MST")
}

func eventChannelLink(event Event) string {
	if event.ChannelID == "" {
		return noChannelLinked
	}
	return fmt.Sprintf("<#%s>", event.ChannelID)
}

// reminderMessage builds the DM body for the given events: the
// single-raid template for one event, the numbered consolidated
// template for several. Raid times are rendered in loc - the
// community runs on one timezone regardless of where members live.
func reminderMessage(events []Event, loc *time.Location) string {
	if len(events) == 1 {
		event := events[0]
		var title string
		if event.Title != "" {
			title = fmt.Sprintf(" %q", event.Title)
		}
		return fmt.Sprintf(
			"Hey! Don't forget to sign up for the raid%s on %s at %s.\n\n"+
				"You can sign up here: %s",
			title,
			formatEventDate(event.StartTime, loc),
			formatEventTime(event.StartTime, loc),
			eventChannelLink(event),
		)
	}

	var b strings.Builder
	b.WriteString("Hey! Don't forget to sign up for these upcoming raids:\n\n")
	for i, event := range events {
		var title string
		if event.Title != "" {
			title = fmt.Sprintf(" %q", event.Title)
		}
		fmt.Fprintf(
			&b,
			"**%d.**%s on %s at %s\n   Sign up: %s\n\n",
			i+1,
			title,
			formatEventDate(event.StartTime, loc),
			formatEventTime(event.StartTime, loc),
			eventChannelLink(event),
		)
	}
	b.WriteString("Make sure to sign up for all the raids you plan to attend! 🏆")
	return b.String()
}

// discordReminderSender delivers reminders as direct messages through
// the Discord session.
type discordReminderSender struct {
	session DiscordSessionHandler
	loc     *time.Location
	logger  *slog.Logger
}

func (s *discordReminderSender) SendReminder(
	ctx context.Context,
	member *discordgo.Member,
	events []Event,
) DispatchResult {
	result := DispatchResult{
		Member:     memberTag(member),
		UserID:     member.User.ID,
		EventCount: len(events),
	}

	message := reminderMessage(events, s.loc)

	channel, err := s.session.UserChannelCreate(member.User.ID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if _, err = s.session.ChannelMessageSend(channel.ID, message); err != nil {
		// commonly: the member has DMs disabled
		result.Error = err.Error()
		return result
	}

	s.logger.InfoContext(
		ctx,
		"sent raid reminder",
		"member", result.Member,
		"event_count", result.EventCount,
	)
	result.Success = true
	return result
}

// dryRunSender reports what would be sent, without sending anything.
type dryRunSender struct {
	logger *slog.Logger
}

func (s *dryRunSender) SendReminder(
	ctx context.Context,
	member *discordgo.Member,
	events []Event,
) DispatchResult {
	s.logger.InfoContext(
		ctx,
		"dry run: would send raid reminder",
		"member", memberTag(member),
		"event_count", len(events),
	)
	return DispatchResult{
		Success:    true,
		Member:     memberTag(member),
		UserID:     member.User.ID,
		EventCount: len(events),
		DryRun:     true,
	}
}

// sendOneReminder invokes the sender for one member, converting a
// panic into a failed result so a single bad dispatch can't take down
// the rest of the batch.
func sendOneReminder(
	ctx context.Context,
	sender ReminderSender,
	entry *memberReminder,
) (result DispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DispatchResult{
				Member:     memberTag(entry.Member),
				UserID:     entry.Member.User.ID,
				EventCount: len(entry.Events),
				Error:      fmt.Sprintf("panic sending reminder: %v", r),
			}
		}
	}()
	return sender.SendReminder(ctx, entry.Member, entry.Events)
}

// ProcessSignupCheck reconciles the given events against the eligible
// member set and dispatches one consolidated reminder per member with
// missing sign-ups.
//
// Empty inputs are healthy outcomes, not errors: no events, no
// eligible members, or everyone signed up all produce a successful
// zero-reminder result. Individual dispatch failures are recorded and
// never abort the loop.
func ProcessSignupCheck(ctx context.Context, input SignupCheckInput) SignupCheckResult {
	logger := input.Logger
	if logger == nil {
		var ok bool
		logger, ok = ContextLogger(ctx)
		if !ok {
			logger = slog.Default()
		}
	}

	result := SignupCheckResult{
		Success:     true,
		TotalEvents: len(input.Events),
		Results:     []DispatchResult{},
	}

	if len(input.Events) == 0 {
		logger.InfoContext(ctx, "no upcoming events, nothing to check")
		return result
	}

	result.ProcessedEvents = len(input.Events)

	if len(input.EligibleMembers) == 0 {
		// a valid steady state (e.g. freshly configured server), but
		// worth surfacing so a raid role misconfiguration isn't silent
		result.Note = "no eligible members found"
		logger.WarnContext(ctx, "no raid-eligible members found")
		return result
	}

	reminders := aggregateMissingSignups(input.Events, input.EligibleMembers)
	if len(reminders) == 0 {
		logger.InfoContext(
			ctx,
			"all eligible members are signed up for all events",
			"events", len(input.Events),
			"eligible_members", len(input.EligibleMembers),
		)
		return result
	}

	logger.InfoContext(
		ctx,
		"sending consolidated reminders",
		"members_missing", len(reminders),
		"events", len(input.Events),
		"dry_run", input.DryRun,
	)

	sendDelay := input.SendDelay
	if sendDelay <= 0 {
		sendDelay = DefaultReminderSendDelay
	}

	for i, entry := range reminders {
		// throttle real sends; dry runs have no rate limit to respect
		if i > 0 && !input.DryRun {
			select {
			case <-ctx.Done():
				result.Success = false
				result.Error = ctx.Err().Error()
				return result
			case <-time.After(sendDelay):
			}
		}

		dispatch := sendOneReminder(ctx, input.Sender, entry)
		result.Results = append(result.Results, dispatch)
		if dispatch.Success {
			result.TotalReminders++
		} else {
			result.TotalErrors++
			logger.ErrorContext(
				ctx,
				"failed to send reminder",
				"member", dispatch.Member,
				"error", dispatch.Error,
			)
		}
	}

	logger.InfoContext(
		ctx,
		"signup check complete",
		"events", result.ProcessedEvents,
		"reminders", result.TotalReminders,
		"errors", result.TotalErrors,
		"dry_run", input.DryRun,
	)
	return result
}

// fetchRaidEligibleMembers resolves the guild's raid roles and member
// roster into the set of members eligible for reminders. A missing
// role is logged and yields an empty set, so the check run can report
// the gap instead of crashing.
func (b *ChongBot) fetchRaidEligibleMembers(ctx context.Context) []*discordgo.Member {
	logger := b.logger

	roles, err := b.discord.session.GuildRoles(b.config.Discord.GuildID)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching guild roles", tint.Err(err))
		return nil
	}

	members, err := b.discord.allGuildMembers(b.config.Discord.GuildID)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching guild members", tint.Err(err))
		return nil
	}

	eligible, err := raidEligibleMembers(
		roles,
		members,
		b.config.Discord.RaiderRoleID,
		b.config.Discord.TrialRoleID,
	)
	if err != nil {
		logger.ErrorContext(ctx, "could not resolve raid roles", tint.Err(err))
		return nil
	}

	logger.InfoContext(ctx, "resolved raid-eligible members", "count", len(eligible))
	return eligible
}

// PerformSignupCheck runs the full raid signup check: fetch upcoming
// events, resolve eligible members, reconcile and dispatch. A listing
// failure is fatal to the run and reported as an unsuccessful result;
// everything downstream degrades gracefully. The run summary is
// persisted for the audit trail.
func (b *ChongBot) PerformSignupCheck(ctx context.Context, dryRun bool) SignupCheckResult {
	logger := b.logger.With("dry_run", dryRun)
	ctx = WithLogger(ctx, logger)

	logger.InfoContext(ctx, "starting raid signup check")

	events, err := b.raidHelper.FetchUpcomingEvents(
		ctx,
		b.config.Discord.GuildID,
		b.config.RaidHelper.EventWindowDays,
	)
	if err != nil {
		logger.ErrorContext(ctx, "raid signup check failed", tint.Err(err))
		result := SignupCheckResult{Error: err.Error(), Results: []DispatchResult{}}
		b.recordSignupCheck(ctx, dryRun, result)
		return result
	}

	eligibleMembers := b.fetchRaidEligibleMembers(ctx)

	var sender ReminderSender
	if dryRun {
		sender = &dryRunSender{logger: logger}
	} else {
		sender = &discordReminderSender{
			session: b.discord.session,
			loc:     b.reminderLoc,
			logger:  logger,
		}
	}

	result := ProcessSignupCheck(
		ctx, SignupCheckInput{
			Events:          events,
			EligibleMembers: eligibleMembers,
			Sender:          sender,
			DryRun:          dryRun,
			SendDelay:       b.config.RaidHelper.SendDelay,
			Logger:          logger,
		},
	)
	b.recordSignupCheck(ctx, dryRun, result)
	return result
}

// recordSignupCheck persists the run summary and per-member outcomes.
// Reconciliation state is never read back from the database; this is
// purely an audit trail.
func (b *ChongBot) recordSignupCheck(
	ctx context.Context,
	dryRun bool,
	result SignupCheckResult,
) {
	if b.db == nil {
		return
	}
	check := RaidCheck{
		DryRun:          dryRun,
		Success:         result.Success,
		TotalEvents:     result.TotalEvents,
		ProcessedEvents: result.ProcessedEvents,
		TotalReminders:  result.TotalReminders,
		TotalErrors:     result.TotalErrors,
		Note:            result.Note,
		Error:           result.Error,
	}
	for _, dispatch := range result.Results {
		check.Reminders = append(
			check.Reminders, ReminderLog{
				UserID:     dispatch.UserID,
				Member:     dispatch.Member,
				EventCount: dispatch.EventCount,
				Success:    dispatch.Success,
				DryRun:     dispatch.DryRun,
				Error:      dispatch.Error,
			},
		)
	}
	if err := b.db.WithContext(ctx).Create(&check).Error; err != nil {
		b.logger.ErrorContext(ctx, "error recording signup check", tint.Err(err))
	}
}
