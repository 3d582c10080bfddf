package chongbot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	customIDVerifyButton  = "verify_nickname"
	customIDNicknameModal = "nickname_modal"
	customIDNicknameInput = "nickname_input"
	customIDRoleSelect    = "role_selection"

	warcraftLogsBaseURL = "https://classic.warcraftlogs.com/character/us/pagle/"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// usernameCache remembers members' original Discord usernames, so the
// pre-verification name is still known after a nickname is set.
type usernameCache struct {
	mu    sync.Mutex
	names map[string]string
}

func newUsernameCache() *usernameCache {
	return &usernameCache{names: map[string]string{}}
}

func (c *usernameCache) Set(userID string, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[userID] = username
}

func (c *usernameCache) Get(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[userID]
	return name, ok
}

func (c *usernameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

// communityRole maps a verification role selection to the configured
// role ID and display name. ok is false for an unknown choice.
func (c *DiscordConfig) communityRole(choice string) (roleID string, name string, ok bool) {
	switch strings.ToLower(choice) {
	case "pug":
		return c.PugRoleID, "Pug", true
	case "prospect":
		return c.ProspectRoleID, "Prospect", true
	case "guildie":
		return c.GuildieRoleID, "Guildie", true
	default:
		return "", "", false
	}
}

// communityRoleIDs returns the configured community role IDs, skipping
// any left unset.
func (c *DiscordConfig) communityRoleIDs() []string {
	var ids []string
	for _, id := range []string{c.PugRoleID, c.ProspectRoleID, c.GuildieRoleID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// memberCommunityRoles returns the display names of the community
// roles the member currently holds.
func (c *DiscordConfig) memberCommunityRoles(m *discordgo.Member) []string {
	var names []string
	for _, choice := range []string{"pug", "prospect", "guildie"} {
		roleID, name, _ := c.communityRole(choice)
		if roleID != "" && memberHasRole(m, roleID) {
			names = append(names, name)
		}
	}
	return names
}

// verificationEmbed is the persistent welcome message in the verify
// channel, walking new members through the two-step flow.
func verificationEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       0x00FF00,
		Title:       "🎮 Welcome to Chonglers!",
		Description: "**New members:** Complete our quick 2-step verification to access all channels and join the community!",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "🎯 Why verify?",
				Value: "Setting your Discord name to match your in-game character helps everyone connect your Discord messages to your in-game actions, making communication crystal clear during gameplay!",
			},
			{
				Name:  "✨ Quick 2-Step Process:",
				Value: "**Step 1:** Click the button below and enter your exact in-game character name\n**Step 2:** Choose your community role from the dropdown menu\n\n🎉 **That's it!** You'll instantly gain access to all channels and your community role.",
			},
			{
				Name:  "🎭 Community Roles Available:",
				Value: "🐶 **Pug** - Pick-up group member for one-off raids\n⚡ **Prospect** - Experienced player looking to join\n🛡️ **Guildie** - Full guild member",
			},
			{
				Name:  "💡 Pro Tip",
				Value: "Use your **exact in-game character name** - this ensures seamless communication between Discord and the game!",
			},
			{
				Name:  "🔄 Already verified?",
				Value: "If you need to update your name or re-verify, just click the button again!",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "This is a quick 2-step setup that takes just a few seconds!",
		},
	}
}

func verificationButton() discordgo.Button {
	return discordgo.Button{
		CustomID: customIDVerifyButton,
		Label:    "🎮 Complete Verification",
		Style:    discordgo.PrimaryButton,
	}
}

// ensureVerificationMessage posts the persistent verification message
// to the verify channel if the bot hasn't posted one already.
func (b *ChongBot) ensureVerificationMessage(ctx context.Context, botUserID string) error {
	channelID := b.config.Discord.VerifyChannelID
	if channelID == "" {
		b.logger.InfoContext(ctx, "verify channel not configured, skipping setup")
		return nil
	}

	messages, err := b.discord.session.ChannelMessages(channelID, 10, "", "", "")
	if err != nil {
		return fmt.Errorf("error fetching verify channel messages: %w", err)
	}
	for _, msg := range messages {
		if msg.Author != nil && msg.Author.ID == botUserID && len(msg.Components) > 0 {
			b.logger.DebugContext(ctx, "verification message already present")
			return nil
		}
	}

	_, err = b.discord.session.ChannelMessageSendComplex(
		channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{verificationEmbed()},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{verificationButton()},
				},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("error sending verification message: %w", err)
	}
	b.logger.InfoContext(ctx, "posted verification message", "channel_id", channelID)
	return nil
}

// assignUnverifiedRole grants the unverified role to a member if they
// don't already hold it.
func (b *ChongBot) assignUnverifiedRole(member *discordgo.Member) error {
	roleID := b.config.Discord.UnverifiedRoleID
	if roleID == "" || memberHasRole(member, roleID) {
		return nil
	}
	return b.discord.session.GuildMemberRoleAdd(
		b.config.Discord.GuildID, member.User.ID, roleID,
	)
}

// assignCommunityRole moves a member onto the selected community role:
// the unverified role and any other community roles are removed first,
// then the selected role is granted.
func (b *ChongBot) assignCommunityRole(
	member *discordgo.Member,
	choice string,
) (string, error) {
	cfg := b.config.Discord
	roleID, roleName, ok := cfg.communityRole(choice)
	if !ok {
		return "", fmt.Errorf("invalid role choice: %s", choice)
	}
	if roleID == "" {
		return "", fmt.Errorf("role not configured: %s", roleName)
	}

	if cfg.UnverifiedRoleID != "" && memberHasRole(member, cfg.UnverifiedRoleID) {
		if err := b.discord.session.GuildMemberRoleRemove(
			cfg.GuildID, member.User.ID, cfg.UnverifiedRoleID,
		); err != nil {
			return "", fmt.Errorf("error removing unverified role: %w", err)
		}
	}

	for _, otherID := range cfg.communityRoleIDs() {
		if otherID == roleID || !memberHasRole(member, otherID) {
			continue
		}
		if err := b.discord.session.GuildMemberRoleRemove(
			cfg.GuildID, member.User.ID, otherID,
		); err != nil {
			return "", fmt.Errorf("error removing community role: %w", err)
		}
	}

	if !memberHasRole(member, roleID) {
		if err := b.discord.session.GuildMemberRoleAdd(
			cfg.GuildID, member.User.ID, roleID,
		); err != nil {
			return "", fmt.Errorf("error adding community role: %w", err)
		}
	}

	b.logger.Info(
		"assigned community role",
		"member", memberTag(member),
		"role", roleName,
	)
	return roleName, nil
}

// VerifyUser manually verifies a member by assigning the Pug community
// role, which also clears the unverified role. Returns the assigned
// role name.
func (b *ChongBot) VerifyUser(ctx context.Context, userID string) (string, error) {
	member, err := b.discord.session.GuildMember(b.config.Discord.GuildID, userID)
	if err != nil {
		return "", fmt.Errorf("error fetching member: %w", err)
	}
	if roles := b.config.Discord.memberCommunityRoles(member); len(roles) > 0 {
		return "", fmt.Errorf(
			"%s is already verified with community role(s): %s",
			memberTag(member), strings.Join(roles, ", "),
		)
	}
	roleName, err := b.assignCommunityRole(member, "pug")
	if err != nil {
		return "", err
	}
	b.recordVerification(ctx, member, roleName, "manually verified")
	return roleName, nil
}

// UnverifyUser strips a member's community roles and restores the
// unverified role.
func (b *ChongBot) UnverifyUser(ctx context.Context, userID string) error {
	cfg := b.config.Discord
	member, err := b.discord.session.GuildMember(cfg.GuildID, userID)
	if err != nil {
		return fmt.Errorf("error fetching member: %w", err)
	}

	communityRoles := cfg.memberCommunityRoles(member)
	if len(communityRoles) == 0 && memberHasRole(member, cfg.UnverifiedRoleID) {
		return fmt.Errorf("%s is already unverified", memberTag(member))
	}

	for _, roleID := range cfg.communityRoleIDs() {
		if !memberHasRole(member, roleID) {
			continue
		}
		if err = b.discord.session.GuildMemberRoleRemove(
			cfg.GuildID, member.User.ID, roleID,
		); err != nil {
			return fmt.Errorf("error removing community role: %w", err)
		}
	}
	if err = b.assignUnverifiedRole(member); err != nil {
		return fmt.Errorf("error assigning unverified role: %w", err)
	}

	b.recordVerification(ctx, member, "", "unverified")
	b.logger.InfoContext(ctx, "unverified member", "member", memberTag(member))
	return nil
}

// handlerGuildMemberAdd caches the new member's username and assigns
// the unverified role. New members then see the persistent
// verification message in the verify channel.
func (b *ChongBot) handlerGuildMemberAdd() func(
	s *discordgo.Session,
	m *discordgo.GuildMemberAdd,
) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.User == nil || m.User.Bot {
			return
		}
		b.logger.Info("new member joined", "member", memberTag(m.Member))
		b.usernames.Set(m.User.ID, m.User.Username)
		if err := b.assignUnverifiedRole(m.Member); err != nil {
			b.logger.Error(
				"error assigning unverified role",
				"member", memberTag(m.Member),
				tint.Err(err),
			)
		}
	}
}

// sweepUnverifiedRoles walks the full member list at startup, caching
// usernames and assigning the unverified role to anyone holding
// neither the unverified role nor a community role. Returns how many
// members were assigned.
func (b *ChongBot) sweepUnverifiedRoles(ctx context.Context) (int, error) {
	cfg := b.config.Discord
	members, err := b.discord.allGuildMembers(cfg.GuildID)
	if err != nil {
		return 0, fmt.Errorf("error fetching guild members: %w", err)
	}

	assigned := 0
	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		b.usernames.Set(member.User.ID, member.User.Username)

		hasUnverified := memberHasRole(member, cfg.UnverifiedRoleID)
		hasCommunity := len(cfg.memberCommunityRoles(member)) > 0
		if hasUnverified || hasCommunity {
			continue
		}
		if err = b.assignUnverifiedRole(member); err != nil {
			b.logger.ErrorContext(
				ctx,
				"could not assign unverified role",
				"member", memberTag(member),
				tint.Err(err),
			)
			continue
		}
		assigned++
	}

	b.logger.InfoContext(
		ctx,
		"member role sweep complete",
		"cached_usernames", b.usernames.Len(),
		"assigned", assigned,
	)
	return assigned, nil
}

// handleVerifyButton responds to the verification button with the
// nickname modal, or a notice if the member is already verified.
func (b *ChongBot) handleVerifyButton(i *discordgo.InteractionCreate) error {
	if i.Member != nil && b.config.Discord.UnverifiedRoleID != "" &&
		!memberHasRole(i.Member, b.config.Discord.UnverifiedRoleID) {
		return b.discord.session.InteractionRespond(
			i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "✅ You're already verified! You have access to all channels.",
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			},
		)
	}

	minLength := 1
	return b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDNicknameModal,
				Title:    "Set Your In-Game Name",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDNicknameInput,
								Label:       "What is your in-game character name?",
								Style:       discordgo.TextInputShort,
								Placeholder: "Enter your exact in-game character name...",
								Required:    true,
								MinLength:   minLength,
								MaxLength:   discordMaxNicknameLength,
							},
						},
					},
				},
			},
		},
	)
}

// modalNickname extracts the submitted nickname from the modal data.
func modalNickname(data discordgo.ModalSubmitInteractionData) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, inputOK := component.(*discordgo.TextInput)
			if inputOK && input.CustomID == customIDNicknameInput {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}

func roleSelectMenu() discordgo.SelectMenu {
	return discordgo.SelectMenu{
		CustomID:    customIDRoleSelect,
		Placeholder: "Choose your community role...",
		Options: []discordgo.SelectMenuOption{
			{
				Label:       "Pug",
				Description: "Pick-up group member for one-off raids",
				Value:       "pug",
				Emoji:       &discordgo.ComponentEmoji{Name: "🐶"},
			},
			{
				Label:       "Prospect",
				Description: "Experienced player looking to join",
				Value:       "prospect",
				Emoji:       &discordgo.ComponentEmoji{Name: "⚡"},
			},
			{
				Label:       "Guildie",
				Description: "Full guild member",
				Value:       "guildie",
				Emoji:       &discordgo.ComponentEmoji{Name: "🛡️"},
			},
		},
	}
}

// handleNicknameModal validates and applies the submitted in-game
// name, then presents the community role selection.
func (b *ChongBot) handleNicknameModal(i *discordgo.InteractionCreate) error {
	nickname := modalNickname(i.ModalSubmitData())
	user := interactionUser(i)

	ephemeralReply := func(content string) error {
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

	if len(nickname) < 1 || len(nickname) > discordMaxNicknameLength {
		return ephemeralReply(
			fmt.Sprintf(
				"❌ In-game name must be between 1 and %d characters long.",
				discordMaxNicknameLength,
			),
		)
	}
	if user != nil && nickname == user.Username {
		return ephemeralReply(
			"❌ Please enter your in-game character name, not your Discord " +
				"username. This helps us connect your Discord messages to your " +
				"in-game actions!",
		)
	}

	if err := b.discord.session.GuildMemberNickname(
		b.config.Discord.GuildID, user.ID, nickname,
	); err != nil {
		b.logger.Error("error setting nickname", "user_id", user.ID, tint.Err(err))
		return ephemeralReply(
			"❌ There was an error setting your in-game name. Please try " +
				"again or contact a moderator.",
		)
	}

	b.logger.Info(
		"nickname set, awaiting role selection",
		"user_id", user.ID,
		"nickname", nickname,
	)

	return b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
				Embeds: []*discordgo.MessageEmbed{
					{
						Color:       0x0099FF,
						Title:       "✅ Nickname Set!",
						Description: fmt.Sprintf("Great! Your in-game name has been set to **%s**.", nickname),
						Fields: []*discordgo.MessageEmbedField{
							{
								Name:  "🎭 Final Step: Choose Your Role",
								Value: "Please select your community role from the dropdown below to complete your verification.",
							},
						},
					},
				},
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{roleSelectMenu()},
					},
				},
			},
		},
	)
}

// handleRoleSelection completes verification: assigns the selected
// community role, confirms to the member, and posts the auto-logs
// embed.
func (b *ChongBot) handleRoleSelection(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) error {
	data := i.MessageComponentData()
	if len(data.Values) == 0 {
		return fmt.Errorf("role selection carried no values")
	}
	choice := data.Values[0]

	// re-fetch: the member payload on the interaction predates the
	// nickname change
	member, err := b.discord.session.GuildMember(
		b.config.Discord.GuildID, interactionUser(i).ID,
	)
	if err != nil {
		return fmt.Errorf("error fetching member: %w", err)
	}

	roleName, err := b.assignCommunityRole(member, choice)
	if err != nil {
		_ = b.discord.session.InteractionRespond(
			i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseUpdateMessage,
				Data: &discordgo.InteractionResponseData{
					Content:    "❌ There was an error completing your verification. Please try again or contact a moderator.",
					Components: []discordgo.MessageComponent{},
				},
			},
		)
		return err
	}

	displayName := memberDisplayName(member)
	err = b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Components: []discordgo.MessageComponent{},
				Embeds: []*discordgo.MessageEmbed{
					{
						Color:       0x00FF00,
						Title:       "✅ Verification Complete!",
						Description: fmt.Sprintf("Welcome to Chonglers, **%s**! Your verification is complete.", displayName),
						Fields: []*discordgo.MessageEmbedField{
							{
								Name:  "🎮 Your Details",
								Value: fmt.Sprintf("**In-Game Name:** %s\n**Community Role:** %s", displayName, roleName),
							},
							{
								Name:  "🎉 You're all set!",
								Value: "You now have access to all channels and your community role. Welcome to the guild!",
							},
							{
								Name:  "💡 Tips",
								Value: "Keep your Discord nickname updated if you change your in-game character name. Use `/chongalation` for some guild wisdom!",
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		return err
	}

	b.recordVerification(ctx, member, roleName, "completed verification flow")
	b.sendAutoLogsMessage(member, roleName)
	b.logger.Info(
		"verification complete",
		"member", memberTag(member),
		"role", roleName,
	)
	return nil
}

// warcraftLogsCharacterName cleans a display name for use in a
// Warcraft Logs URL. ok is false if nothing survives the cleaning.
func warcraftLogsCharacterName(displayName string) (string, bool) {
	cleaned := strings.ToLower(nonAlphanumeric.ReplaceAllString(displayName, ""))
	return cleaned, cleaned != ""
}

// sendAutoLogsMessage posts the new-member embed with their Warcraft
// Logs link to the auto-logs channel, if one is configured.
func (b *ChongBot) sendAutoLogsMessage(member *discordgo.Member, roleName string) {
	channelID := b.config.Discord.AutoLogsChannelID
	if channelID == "" {
		return
	}

	displayName := memberDisplayName(member)
	characterName, ok := warcraftLogsCharacterName(displayName)
	if !ok {
		b.logger.Warn(
			"could not build warcraft logs character name",
			"display_name", displayName,
		)
		return
	}
	logsURL := warcraftLogsBaseURL + characterName

	embed := &discordgo.MessageEmbed{
		Color:       0x00FF00,
		Title:       fmt.Sprintf("🎉 New Member Verified - %s", displayName),
		Description: fmt.Sprintf("[📊 View %s's logs on Pagle](%s)", characterName, logsURL),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Discord User", Value: memberTag(member), Inline: true},
			{Name: "In-Game Name", Value: displayName, Inline: true},
			{Name: "Community Role", Value: roleName, Inline: true},
			{Name: "Server", Value: "Pagle (US)", Inline: true},
			{Name: "Expansion", Value: "Mists of Pandaria Classic", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Auto-generated from verification completion",
		},
	}
	if _, err := b.discord.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Error(
			"error sending auto logs message",
			"member", memberTag(member),
			tint.Err(err),
		)
	}
}

// recordVerification appends a row to the verification audit trail.
func (b *ChongBot) recordVerification(
	ctx context.Context,
	member *discordgo.Member,
	roleName string,
	notes string,
) {
	if b.db == nil || member.User == nil {
		return
	}
	roleID, _, _ := b.config.Discord.communityRole(roleName)
	log := VerificationLog{
		UserID:        member.User.ID,
		Username:      member.User.Username,
		Nickname:      member.Nick,
		CommunityRole: roleName,
		RoleID:        roleID,
		Notes:         notes,
	}
	if err := b.db.WithContext(ctx).Create(&log).Error; err != nil {
		b.logger.ErrorContext(ctx, "error recording verification", tint.Err(err))
	}
}
