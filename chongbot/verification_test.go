package chongbot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsernameCache(t *testing.T) {
	cache := newUsernameCache()
	_, ok := cache.Get("1")
	assert.False(t, ok)

	cache.Set("1", "alice")
	cache.Set("2", "bob")
	cache.Set("1", "alice-renamed")

	name, ok := cache.Get("1")
	assert.True(t, ok)
	assert.Equal(t, "alice-renamed", name)
	assert.Equal(t, 2, cache.Len())
}

func TestCommunityRole(t *testing.T) {
	cfg := &DiscordConfig{
		PugRoleID:      "role-pug",
		ProspectRoleID: "role-prospect",
		GuildieRoleID:  "role-guildie",
	}

	tests := []struct {
		choice     string
		wantRoleID string
		wantName   string
		wantOK     bool
	}{
		{"pug", "role-pug", "Pug", true},
		{"Prospect", "role-prospect", "Prospect", true},
		{"GUILDIE", "role-guildie", "Guildie", true},
		{"officer", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			roleID, name, ok := cfg.communityRole(tt.choice)
			assert.Equal(t, tt.wantRoleID, roleID)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestMemberCommunityRoles(t *testing.T) {
	cfg := &DiscordConfig{
		PugRoleID:     "role-pug",
		GuildieRoleID: "role-guildie",
		// ProspectRoleID deliberately unset
	}
	member := newTestMember("1", "alice", "role-pug", "role-guildie", "role-other")
	assert.Equal(t, []string{"Pug", "Guildie"}, cfg.memberCommunityRoles(member))

	assert.Empty(t, cfg.memberCommunityRoles(newTestMember("2", "bob", "role-other")))
}

func TestWarcraftLogsCharacterName(t *testing.T) {
	tests := []struct {
		displayName string
		want        string
		wantOK      bool
	}{
		{"Chongzilla", "chongzilla", true},
		{"Chong-Zilla!", "chongzilla", true},
		{"Ch0ng 42", "ch0ng42", true},
		{"!!!", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.displayName, func(t *testing.T) {
			got, ok := warcraftLogsCharacterName(tt.displayName)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestModalNickname(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: customIDNicknameModal,
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{
						CustomID: customIDNicknameInput,
						Value:    "  Chongzilla  ",
					},
				},
			},
		},
	}
	assert.Equal(t, "Chongzilla", modalNickname(data))

	assert.Empty(t, modalNickname(discordgo.ModalSubmitInteractionData{}))
}

func TestAssignCommunityRole(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	member := newTestMember("1", "alice", "role-unverified", "role-prospect")
	roleName, err := bot.assignCommunityRole(member, "guildie")
	require.NoError(t, err)
	assert.Equal(t, "Guildie", roleName)

	// unverified and the previous community role come off first
	assert.Equal(
		t, []roleChange{
			{UserID: "1", RoleID: "role-unverified"},
			{UserID: "1", RoleID: "role-prospect"},
		}, session.roleRemoves,
	)
	assert.Equal(
		t,
		[]roleChange{{UserID: "1", RoleID: "role-guildie"}},
		session.roleAdds,
	)
}

func TestAssignCommunityRole_InvalidChoice(t *testing.T) {
	bot := newTestBot(t, newRecordingSession())
	_, err := bot.assignCommunityRole(newTestMember("1", "alice"), "officer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role choice")
}

func TestVerifyUser(t *testing.T) {
	session := newRecordingSession()
	session.addMember(newTestMember("1", "alice", "role-unverified"))
	bot := newTestBot(t, session)
	bot.db = setupTestDB(t)

	roleName, err := bot.VerifyUser(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Pug", roleName)
	assert.Contains(t, session.roleAdds, roleChange{UserID: "1", RoleID: "role-pug"})

	var logs []VerificationLog
	require.NoError(t, bot.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "1", logs[0].UserID)
	assert.Equal(t, "Pug", logs[0].CommunityRole)
	assert.Equal(t, "manually verified", logs[0].Notes)
}

func TestVerifyUser_AlreadyVerified(t *testing.T) {
	session := newRecordingSession()
	session.addMember(newTestMember("1", "alice", "role-guildie"))
	bot := newTestBot(t, session)

	_, err := bot.VerifyUser(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already verified")
	assert.Empty(t, session.roleAdds)
}

func TestUnverifyUser(t *testing.T) {
	session := newRecordingSession()
	session.addMember(newTestMember("1", "alice", "role-pug", "role-guildie"))
	bot := newTestBot(t, session)

	require.NoError(t, bot.UnverifyUser(context.Background(), "1"))
	assert.ElementsMatch(
		t, []roleChange{
			{UserID: "1", RoleID: "role-pug"},
			{UserID: "1", RoleID: "role-guildie"},
		}, session.roleRemoves,
	)
	assert.Equal(
		t,
		[]roleChange{{UserID: "1", RoleID: "role-unverified"}},
		session.roleAdds,
	)
}

func TestUnverifyUser_AlreadyUnverified(t *testing.T) {
	session := newRecordingSession()
	session.addMember(newTestMember("1", "alice", "role-unverified"))
	bot := newTestBot(t, session)

	err := bot.UnverifyUser(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already unverified")
}

func TestEnsureVerificationMessage(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)
	bot.config.Discord.VerifyChannelID = "chan-verify"

	require.NoError(
		t, bot.ensureVerificationMessage(context.Background(), "bot-user"),
	)
	require.Len(t, session.complexSent, 1)
	sent := session.complexSent[0]
	require.Len(t, sent.Embeds, 1)
	assert.Equal(t, "🎮 Welcome to Chonglers!", sent.Embeds[0].Title)
	require.Len(t, sent.Components, 1)
}

func TestEnsureVerificationMessage_AlreadyPresent(t *testing.T) {
	session := newRecordingSession()
	session.channelPosts = []*discordgo.Message{
		{
			Author: &discordgo.User{ID: "bot-user"},
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{},
			},
		},
	}
	bot := newTestBot(t, session)
	bot.config.Discord.VerifyChannelID = "chan-verify"

	require.NoError(
		t, bot.ensureVerificationMessage(context.Background(), "bot-user"),
	)
	assert.Empty(t, session.complexSent)
}

func TestEnsureVerificationMessage_NoChannelConfigured(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)
	bot.config.Discord.VerifyChannelID = ""

	require.NoError(t, bot.ensureVerificationMessage(context.Background(), "bot-user"))
	assert.Empty(t, session.complexSent)
}

func TestSweepUnverifiedRoles(t *testing.T) {
	session := newRecordingSession()
	session.memberPages = [][]*discordgo.Member{
		{
			newTestMember("1", "alice", "role-guildie"),
			newTestMember("2", "bob", "role-unverified"),
			newTestMember("3", "carol"),
			{User: &discordgo.User{ID: "4", Username: "beepboop", Bot: true}},
		},
	}
	bot := newTestBot(t, session)

	assigned, err := bot.sweepUnverifiedRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)
	assert.Equal(
		t,
		[]roleChange{{UserID: "3", RoleID: "role-unverified"}},
		session.roleAdds,
	)

	// usernames cached for humans only
	_, ok := bot.usernames.Get("1")
	assert.True(t, ok)
	_, ok = bot.usernames.Get("4")
	assert.False(t, ok)
}

func TestHandlerGuildMemberAdd(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)
	handler := bot.handlerGuildMemberAdd()

	handler(
		nil, &discordgo.GuildMemberAdd{
			Member: newTestMember("1", "newbie"),
		},
	)
	assert.Equal(
		t,
		[]roleChange{{UserID: "1", RoleID: "role-unverified"}},
		session.roleAdds,
	)
	name, ok := bot.usernames.Get("1")
	assert.True(t, ok)
	assert.Equal(t, "newbie", name)

	// bot accounts are ignored
	handler(
		nil, &discordgo.GuildMemberAdd{
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "2", Username: "beepboop", Bot: true},
			},
		},
	)
	assert.Len(t, session.roleAdds, 1)
}

func componentInteraction(
	member *discordgo.Member,
	data discordgo.MessageComponentInteractionData,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:   discordgo.InteractionMessageComponent,
			Member: member,
			Data:   data,
		},
	}
}

func TestHandleVerifyButton(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	i := componentInteraction(
		newTestMember("1", "alice", "role-unverified"),
		discordgo.MessageComponentInteractionData{CustomID: customIDVerifyButton},
	)
	require.NoError(t, bot.handleVerifyButton(i))

	require.Len(t, session.responses, 1)
	resp := session.responses[0]
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, customIDNicknameModal, resp.Data.CustomID)
}

func TestHandleVerifyButton_AlreadyVerified(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	i := componentInteraction(
		newTestMember("1", "alice", "role-guildie"),
		discordgo.MessageComponentInteractionData{CustomID: customIDVerifyButton},
	)
	require.NoError(t, bot.handleVerifyButton(i))

	require.Len(t, session.responses, 1)
	resp := session.responses[0]
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Contains(t, resp.Data.Content, "already verified")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func modalInteraction(
	member *discordgo.Member,
	nickname string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:   discordgo.InteractionModalSubmit,
			Member: member,
			Data: discordgo.ModalSubmitInteractionData{
				CustomID: customIDNicknameModal,
				Components: []discordgo.MessageComponent{
					&discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							&discordgo.TextInput{
								CustomID: customIDNicknameInput,
								Value:    nickname,
							},
						},
					},
				},
			},
		},
	}
}

func TestHandleNicknameModal(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	member := newTestMember("1", "alice", "role-unverified")
	require.NoError(t, bot.handleNicknameModal(modalInteraction(member, "Chongzilla")))

	assert.Equal(t, "Chongzilla", session.nicknames["1"])
	require.Len(t, session.responses, 1)
	resp := session.responses[0]
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "✅ Nickname Set!", resp.Data.Embeds[0].Title)
	require.Len(t, resp.Data.Components, 1)
}

func TestHandleNicknameModal_MatchesUsername(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	member := newTestMember("1", "alice", "role-unverified")
	require.NoError(t, bot.handleNicknameModal(modalInteraction(member, "alice")))

	assert.Empty(t, session.nicknames)
	require.Len(t, session.responses, 1)
	assert.Contains(
		t,
		session.responses[0].Data.Content,
		"not your Discord username",
	)
}

func TestHandleNicknameModal_TooLong(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	long := make([]byte, discordMaxNicknameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	member := newTestMember("1", "alice", "role-unverified")
	require.NoError(t, bot.handleNicknameModal(modalInteraction(member, string(long))))

	assert.Empty(t, session.nicknames)
	require.Len(t, session.responses, 1)
	assert.Contains(t, session.responses[0].Data.Content, "characters long")
}

func TestHandleRoleSelection(t *testing.T) {
	session := newRecordingSession()
	verified := newTestMember("1", "alice", "role-unverified")
	verified.Nick = "Chongzilla"
	session.addMember(verified)

	bot := newTestBot(t, session)
	bot.config.Discord.AutoLogsChannelID = "chan-autologs"
	bot.db = setupTestDB(t)

	i := componentInteraction(
		newTestMember("1", "alice", "role-unverified"),
		discordgo.MessageComponentInteractionData{
			CustomID: customIDRoleSelect,
			Values:   []string{"guildie"},
		},
	)
	require.NoError(t, bot.handleRoleSelection(context.Background(), i))

	assert.Contains(t, session.roleAdds, roleChange{UserID: "1", RoleID: "role-guildie"})
	assert.Contains(
		t, session.roleRemoves, roleChange{UserID: "1", RoleID: "role-unverified"},
	)

	require.Len(t, session.responses, 1)
	resp := session.responses[0]
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "✅ Verification Complete!", resp.Data.Embeds[0].Title)
	assert.Contains(t, resp.Data.Embeds[0].Description, "Chongzilla")

	// warcraft logs embed posted with the cleaned character name
	require.Len(t, session.embedsSent, 1)
	logsEmbed := session.embedsSent[0]
	assert.Equal(t, "chan-autologs", logsEmbed.ChannelID)
	assert.Contains(
		t,
		logsEmbed.Embed.Description,
		"https://classic.warcraftlogs.com/character/us/pagle/chongzilla",
	)

	var logs []VerificationLog
	require.NoError(t, bot.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "Guildie", logs[0].CommunityRole)
	assert.Equal(t, "Chongzilla", logs[0].Nickname)
}

func TestHandleRoleSelection_NoValues(t *testing.T) {
	session := newRecordingSession()
	bot := newTestBot(t, session)

	i := componentInteraction(
		newTestMember("1", "alice"),
		discordgo.MessageComponentInteractionData{CustomID: customIDRoleSelect},
	)
	require.Error(t, bot.handleRoleSelection(context.Background(), i))
}
