package chongbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	CommandVerify       = "verify"
	CommandUnverify     = "unverify"
	CommandStatus       = "status"
	CommandStats        = "stats"
	CommandChongalation = "chongalation"
	CommandRaidCheck    = "raidcheck"

	commandOptionUser   = "user"
	commandOptionAuthor = "author"
	commandOptionDryRun = "dry_run"
)

func appCommandVerify() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageRoles)
	return &discordgo.ApplicationCommand{
		Name:                     CommandVerify,
		Description:              "Manually verify a user",
		DefaultMemberPermissions: &perms,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "User to verify",
				Required:    true,
			},
		},
	}
}

func appCommandUnverify() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageRoles)
	return &discordgo.ApplicationCommand{
		Name:                     CommandUnverify,
		Description:              "Remove verification from a user",
		DefaultMemberPermissions: &perms,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "User to unverify",
				Required:    true,
			},
		},
	}
}

func appCommandStatus() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageRoles)
	return &discordgo.ApplicationCommand{
		Name:                     CommandStatus,
		Description:              "Check verification status of a user",
		DefaultMemberPermissions: &perms,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        commandOptionUser,
				Description: "User to check",
				Required:    true,
			},
		},
	}
}

func appCommandStats() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageRoles)
	return &discordgo.ApplicationCommand{
		Name:                     CommandStats,
		Description:              "Get verification statistics",
		DefaultMemberPermissions: &perms,
	}
}

func appCommandChongalation() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        CommandChongalation,
		Description: "Share a revered quote from the Chonglers community",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionAuthor,
				Description: "Get a quote from a specific author (optional)",
			},
		},
	}
}

func appCommandRaidCheck() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageRoles)
	return &discordgo.ApplicationCommand{
		Name:                     CommandRaidCheck,
		Description:              "Run the raid signup check now",
		DefaultMemberPermissions: &perms,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        commandOptionDryRun,
				Description: "Report what would be sent without sending reminders",
			},
		},
	}
}

// isAdminUser reports whether the interaction came from an
// allow-listed admin or a member with administrator/manage-roles
// permissions.
func (b *ChongBot) isAdminUser(i *discordgo.InteractionCreate) bool {
	user := interactionUser(i)
	if user == nil {
		return false
	}
	for _, adminID := range b.config.Discord.AdminUserIDs {
		if adminID == user.ID {
			return true
		}
	}
	if i.Member != nil {
		if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
		if i.Member.Permissions&discordgo.PermissionManageRoles != 0 {
			return true
		}
	}
	return false
}

func adminCommands() map[string]bool {
	return map[string]bool{
		CommandVerify:    true,
		CommandUnverify:  true,
		CommandStatus:    true,
		CommandStats:     true,
		CommandRaidCheck: true,
	}
}

// handleSlashCommand routes an application command interaction to its
// handler, enforcing the admin gate first.
func (b *ChongBot) handleSlashCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) error {
	commandName := i.ApplicationCommandData().Name

	if adminCommands()[commandName] && !b.isAdminUser(i) {
		return b.ephemeralReply(
			i,
			"❌ You do not have permission to use this command. Only "+
				"administrators and allow-listed users can run admin commands.",
		)
	}

	switch commandName {
	case CommandVerify:
		return b.handleVerifyCommand(ctx, i)
	case CommandUnverify:
		return b.handleUnverifyCommand(ctx, i)
	case CommandStatus:
		return b.handleStatusCommand(i)
	case CommandStats:
		return b.handleStatsCommand(i)
	case CommandChongalation:
		return b.handleChongalationCommand(i)
	case CommandRaidCheck:
		return b.handleRaidCheckCommand(ctx, i)
	default:
		return b.ephemeralReply(i, "Unknown command!")
	}
}

func (b *ChongBot) ephemeralReply(i *discordgo.InteractionCreate, content string) error {
	return b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
}

func (b *ChongBot) ephemeralEmbedReply(
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
) error {
	return b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
				Flags:  discordgo.MessageFlagsEphemeral,
			},
		},
	)
}

// commandTargetUser resolves the required "user" option of an admin
// command.
func commandTargetUser(i *discordgo.InteractionCreate) (*discordgo.User, error) {
	option, ok := discordInteractionOptions(i)[commandOptionUser]
	if !ok {
		return nil, fmt.Errorf("missing %q option", commandOptionUser)
	}
	user := option.UserValue(nil)
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("could not resolve target user")
	}
	return user, nil
}

func (b *ChongBot) handleVerifyCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) error {
	targetUser, err := commandTargetUser(i)
	if err != nil {
		return b.ephemeralReply(i, "❌ Could not resolve the target user.")
	}

	roleName, err := b.VerifyUser(ctx, targetUser.ID)
	if err != nil {
		return b.ephemeralReply(i, fmt.Sprintf("❌ %s", err.Error()))
	}

	member, memberErr := b.discord.session.GuildMember(
		b.config.Discord.GuildID, targetUser.ID,
	)
	nickname := "None"
	if memberErr == nil && member.Nick != "" {
		nickname = member.Nick
	}

	return b.ephemeralEmbedReply(
		i, &discordgo.MessageEmbed{
			Color:       0x00FF00,
			Title:       "User Manually Verified ✅",
			Description: fmt.Sprintf("%s has been manually verified by %s", targetUser.String(), interactionUser(i).String()),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "User", Value: targetUser.String(), Inline: true},
				{Name: "Verified by", Value: interactionUser(i).String(), Inline: true},
				{Name: "Role Assigned", Value: roleName, Inline: true},
				{Name: "Current Nickname", Value: nickname, Inline: true},
			},
		},
	)
}

func (b *ChongBot) handleUnverifyCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) error {
	targetUser, err := commandTargetUser(i)
	if err != nil {
		return b.ephemeralReply(i, "❌ Could not resolve the target user.")
	}

	if err = b.UnverifyUser(ctx, targetUser.ID); err != nil {
		return b.ephemeralReply(i, fmt.Sprintf("❌ %s", err.Error()))
	}

	return b.ephemeralEmbedReply(
		i, &discordgo.MessageEmbed{
			Color:       0xFF0000,
			Title:       "User Unverified ❌",
			Description: fmt.Sprintf("%s has been unverified by %s", targetUser.String(), interactionUser(i).String()),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "User", Value: targetUser.String(), Inline: true},
				{Name: "Unverified by", Value: interactionUser(i).String(), Inline: true},
			},
		},
	)
}

func (b *ChongBot) handleStatusCommand(i *discordgo.InteractionCreate) error {
	targetUser, err := commandTargetUser(i)
	if err != nil {
		return b.ephemeralReply(i, "❌ Could not resolve the target user.")
	}

	member, err := b.discord.session.GuildMember(
		b.config.Discord.GuildID, targetUser.ID,
	)
	if err != nil {
		return b.ephemeralReply(i, "❌ Could not fetch that member.")
	}

	communityRoles := b.config.Discord.memberCommunityRoles(member)
	verified := len(communityRoles) > 0
	roleList := "None"
	if verified {
		roleList = strings.Join(communityRoles, ", ")
	}
	nickname := "None"
	if member.Nick != "" {
		nickname = member.Nick
	}
	verifiedValue := "No ❌"
	color := 0xFF0000
	if verified {
		verifiedValue = "Yes ✅"
		color = 0x00FF00
	}
	hasUnverified := "No"
	if memberHasRole(member, b.config.Discord.UnverifiedRoleID) {
		hasUnverified = "Yes"
	}
	joinDate := "Unknown"
	if !member.JoinedAt.IsZero() {
		joinDate = member.JoinedAt.Format("Jan 2, 2006")
	}

	return b.ephemeralEmbedReply(
		i, &discordgo.MessageEmbed{
			Color: color,
			Title: fmt.Sprintf("Status for %s", targetUser.String()),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Username", Value: targetUser.String(), Inline: true},
				{Name: "Nickname", Value: nickname, Inline: true},
				{Name: "Verified", Value: verifiedValue, Inline: true},
				{Name: "Community Roles", Value: roleList, Inline: true},
				{Name: "Has Unverified Role", Value: hasUnverified, Inline: true},
				{Name: "Join Date", Value: joinDate, Inline: true},
			},
		},
	)
}

func (b *ChongBot) handleStatsCommand(i *discordgo.InteractionCreate) error {
	members, err := b.discord.allGuildMembers(b.config.Discord.GuildID)
	if err != nil {
		b.logger.Error("error fetching members for stats", tint.Err(err))
		return b.ephemeralReply(i, "❌ Could not fetch the member list.")
	}

	var total, verified, unverified int
	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		total++
		if len(b.config.Discord.memberCommunityRoles(member)) > 0 {
			verified++
		}
		if memberHasRole(member, b.config.Discord.UnverifiedRoleID) {
			unverified++
		}
	}
	rate := 0.0
	if total > 0 {
		rate = float64(verified) / float64(total) * 100
	}

	return b.ephemeralEmbedReply(
		i, &discordgo.MessageEmbed{
			Color: 0x0099FF,
			Title: "📊 Server Verification Statistics",
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Total Members", Value: fmt.Sprintf("%d", total), Inline: true},
				{Name: "Verified Members", Value: fmt.Sprintf("%d ✅", verified), Inline: true},
				{Name: "Unverified Members", Value: fmt.Sprintf("%d ❌", unverified), Inline: true},
				{Name: "Verification Rate", Value: fmt.Sprintf("%.1f%%", rate), Inline: true},
				{Name: "Bot Status", Value: "🟢 Online", Inline: true},
				{
					Name:   "Next Raid Check",
					Value:  b.NextScheduledRun().Format("Jan 2 3:04 PM MST"),
					Inline: true,
				},
			},
		},
	)
}

func (b *ChongBot) handleChongalationCommand(i *discordgo.InteractionCreate) error {
	var chongalation Chongalation
	if option, ok := discordInteractionOptions(i)[commandOptionAuthor]; ok {
		authorFilter := option.StringValue()
		match, found := ChongalationByAuthor(authorFilter)
		if !found {
			return b.ephemeralReply(
				i, fmt.Sprintf(
					"❌ No quotes found for %q. Available authors: %s",
					authorFilter,
					strings.Join(ChongalationAuthors(), ", "),
				),
			)
		}
		chongalation = match
	} else {
		chongalation = RandomChongalation()
	}

	embed := &discordgo.MessageEmbed{
		Color: 0xFFD700,
		Title: "📜 Chongalation",
		Description: fmt.Sprintf(
			"*\"%s\"*\n\n%s 🙏", chongalation.Quote, chongalation.Emoji,
		),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "📖 Source",
				Value: fmt.Sprintf("**%s** - %s", chongalation.Author, chongalation.Reference),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Chongalations are revered quotes from the Chonglers community, preserved with reverence.",
		},
	}
	return b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		},
	)
}

// handleRaidCheckCommand acknowledges immediately, runs the signup
// check, and edits the deferred response with the run summary.
func (b *ChongBot) handleRaidCheckCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) error {
	dryRun := false
	if option, ok := discordInteractionOptions(i)[commandOptionDryRun]; ok {
		dryRun = option.BoolValue()
	}

	if err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	); err != nil {
		return err
	}

	result := b.PerformSignupCheck(ctx, dryRun)

	var summary strings.Builder
	if result.Error != "" {
		fmt.Fprintf(&summary, "❌ Raid signup check failed: %s", result.Error)
	} else {
		mode := ""
		if dryRun {
			mode = " (dry run)"
		}
		fmt.Fprintf(
			&summary,
			"✅ Raid signup check complete%s: %d event(s), %d reminder(s), %d error(s)",
			mode,
			result.ProcessedEvents,
			result.TotalReminders,
			result.TotalErrors,
		)
		if result.Note != "" {
			fmt.Fprintf(&summary, "\nNote: %s", result.Note)
		}
	}
	content := summary.String()

	_, err := b.discord.session.InteractionResponseEdit(
		i.Interaction, &discordgo.WebhookEdit{Content: &content},
	)
	return err
}

// handlerInteractionCreate is the gateway entry point for every
// interaction: slash commands, the verification button, the nickname
// modal, and the role select.
func (b *ChongBot) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ctx = WithLogger(ctx, b.logger)

		logger := b.logger.With(interactionLogAttrs(*i)...)

		var err error
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			logger.Info("received command", "command", i.ApplicationCommandData().Name)
			err = b.handleSlashCommand(ctx, i)
		case discordgo.InteractionMessageComponent:
			switch i.MessageComponentData().CustomID {
			case customIDVerifyButton:
				err = b.handleVerifyButton(i)
			case customIDRoleSelect:
				err = b.handleRoleSelection(ctx, i)
			default:
				logger.Warn(
					"unknown component interaction",
					"custom_id", i.MessageComponentData().CustomID,
				)
			}
		case discordgo.InteractionModalSubmit:
			if i.ModalSubmitData().CustomID == customIDNicknameModal {
				err = b.handleNicknameModal(i)
			}
		default:
			logger.Warn("unhandled interaction type")
		}

		if err != nil {
			logger.Error("error handling interaction", tint.Err(err))
		}
	}
}
