package chongbot

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.Default().With("test", t.Name())
}

// DefaultTestConfig returns a fully-populated config pointing at a
// temp-dir database, suitable for constructing a bot in tests.
func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database = filepath.Join(t.TempDir(), "chongbot_test.sqlite3")
	cfg.Discord.Token = t.Name()
	cfg.Discord.ApplicationID = "app-" + t.Name()
	cfg.Discord.GuildID = "guild-" + t.Name()
	cfg.Discord.UnverifiedRoleID = "role-unverified"
	cfg.Discord.PugRoleID = "role-pug"
	cfg.Discord.ProspectRoleID = "role-prospect"
	cfg.Discord.GuildieRoleID = "role-guildie"
	cfg.Discord.RaiderRoleID = testRaiderRoleID
	cfg.Discord.TrialRoleID = testTrialRoleID
	return cfg
}

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := CreateDB(
		context.Background(),
		filepath.Join(t.TempDir(), "chongbot_test.sqlite3"),
		tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelWarn}),
		DefaultDatabaseSlowThreshold,
	)
	require.NoError(t, err)
	return db
}

// newTestBot assembles a ChongBot around the given session without
// opening any network connections.
func newTestBot(t testing.TB, session DiscordSessionHandler) *ChongBot {
	t.Helper()
	cfg := DefaultTestConfig(t)
	logger := testLogger(t)

	loc, err := time.LoadLocation(cfg.RaidHelper.Timezone)
	require.NoError(t, err)

	b := &ChongBot{
		config:      cfg,
		logger:      logger,
		usernames:   newUsernameCache(),
		reminderLoc: loc,
		startedAt:   time.Now(),
	}
	b.discord = &Discord{
		config:  cfg.Discord,
		logger:  logger,
		session: session,
		bot:     b,
		ready:   make(chan struct{}),
	}
	return b
}

// mockDiscordSession is a mock implementation of the
// DiscordSessionHandler interface. It logs actions instead of
// performing actual operations.
type mockDiscordSession struct {
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

func newMockDiscordSession() mockDiscordSession {
	m := mockDiscordSession{
		logLevel: &slog.LevelVar{},
	}
	m.logLevel.Set(slog.LevelDebug)
	m.logger = slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     m.logLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord_session_handler")
	return m
}

func (d mockDiscordSession) Open() error {
	d.logger.Info("opened session")
	return nil
}

func (d mockDiscordSession) Close() error {
	d.logger.Info("closed session")
	return nil
}

func (d mockDiscordSession) AddHandler(_ any) func() {
	d.logger.Info("added handler")
	return func() {
		d.logger.Info("mock-removed handler function")
	}
}

func (d mockDiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info(
		"saw message send",
		"channel_id", channelID,
		"content", message,
	)
	return &discordgo.Message{}, nil
}

func (d mockDiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info("saw embed send", "channel_id", channelID, "title", embed.Title)
	return &discordgo.Message{}, nil
}

func (d mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	_ *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info("saw complex message send", "channel_id", channelID)
	return &discordgo.Message{}, nil
}

func (d mockDiscordSession) ChannelMessages(
	channelID string,
	limit int,
	_ string,
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	d.logger.Info("listing channel messages", "channel_id", channelID, "limit", limit)
	return nil, nil
}

func (d mockDiscordSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	d.logger.Info("creating user channel", "recipient_id", recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (d mockDiscordSession) GuildRoles(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	d.logger.Info("listing guild roles", "guild_id", guildID)
	return nil, nil
}

func (d mockDiscordSession) GuildMembers(
	guildID string,
	after string,
	limit int,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Member, error) {
	d.logger.Info(
		"listing guild members",
		"guild_id", guildID,
		"after", after,
		"limit", limit,
	)
	return nil, nil
}

func (d mockDiscordSession) GuildMember(
	guildID string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	d.logger.Info("fetching guild member", "guild_id", guildID, "user_id", userID)
	return &discordgo.Member{User: &discordgo.User{ID: userID}}, nil
}

func (d mockDiscordSession) GuildMemberNickname(
	guildID string,
	userID string,
	nickname string,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"setting nickname",
		"guild_id", guildID,
		"user_id", userID,
		"nickname", nickname,
	)
	return nil
}

func (d mockDiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"adding role",
		"guild_id", guildID,
		"user_id", userID,
		"role_id", roleID,
	)
	return nil
}

func (d mockDiscordSession) GuildMemberRoleRemove(
	guildID string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info(
		"removing role",
		"guild_id", guildID,
		"user_id", userID,
		"role_id", roleID,
	)
	return nil
}

func (d mockDiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	d.logger.Info(
		"overwrite application commands",
		"app_id", appID,
		"guild_id", guildID,
		"commands", len(commands),
	)
	cmds := make([]*discordgo.ApplicationCommand, len(commands))
	for i, c := range commands {
		cmds[i] = &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: c.Description,
		}
	}
	return cmds, nil
}

func (d mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	d.logger.Info("interaction respond", "type", resp.Type)
	return nil
}

func (d mockDiscordSession) InteractionResponseEdit(
	_ *discordgo.Interaction,
	edit *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.logger.Info("interaction response edit", "edit", edit)
	return &discordgo.Message{}, nil
}

func (d mockDiscordSession) UpdateCustomStatus(status string) error {
	d.logger.Info("updating custom status", "status", status)
	return nil
}

func (d mockDiscordSession) SetHTTPClient(_ *http.Client) {
	d.logger.Info("set http client")
}

func (d mockDiscordSession) SetLogLevel(lvl slog.Level) error {
	d.logger.Info("set log level", "level", lvl)
	return nil
}

func (d mockDiscordSession) GatewayBot(
	_ ...discordgo.RequestOption,
) (*discordgo.GatewayBotResponse, error) {
	d.logger.Info("gateway bot called")
	return &discordgo.GatewayBotResponse{}, nil
}

type roleChange struct {
	UserID string
	RoleID string
}

type channelEmbed struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
}

type stubChannelMessageSend struct {
	ChannelID string
	Content   string
}

// recordingSession wraps mockDiscordSession, recording calls and
// serving canned guild state.
type recordingSession struct {
	mockDiscordSession

	members      map[string]*discordgo.Member
	memberPages  [][]*discordgo.Member
	roles        []*discordgo.Role
	channelPosts []*discordgo.Message

	guildMemberErr   error
	roleAddErr       error
	nicknameErr      error
	messageSendErr   error
	channelCreateErr error

	roleAdds     []roleChange
	roleRemoves  []roleChange
	nicknames    map[string]string
	responses    []*discordgo.InteractionResponse
	edits        []*discordgo.WebhookEdit
	embedsSent   []channelEmbed
	complexSent  []*discordgo.MessageSend
	messagesSent []stubChannelMessageSend
	dmsOpened    []string
}

func newRecordingSession() *recordingSession {
	return &recordingSession{
		mockDiscordSession: newMockDiscordSession(),
		members:            map[string]*discordgo.Member{},
		nicknames:          map[string]string{},
	}
}

func (s *recordingSession) addMember(m *discordgo.Member) {
	s.members[m.User.ID] = m
}

func (s *recordingSession) GuildMember(
	_ string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	if s.guildMemberErr != nil {
		return nil, s.guildMemberErr
	}
	member, ok := s.members[userID]
	if !ok {
		return nil, &discordgo.RESTError{Message: &discordgo.APIErrorMessage{
			Code: discordgo.ErrCodeUnknownMember, Message: "Unknown Member",
		}}
	}
	return member, nil
}

func (s *recordingSession) GuildMembers(
	_ string,
	_ string,
	_ int,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Member, error) {
	if len(s.memberPages) == 0 {
		return nil, nil
	}
	page := s.memberPages[0]
	s.memberPages = s.memberPages[1:]
	return page, nil
}

func (s *recordingSession) GuildRoles(
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return s.roles, nil
}

func (s *recordingSession) GuildMemberRoleAdd(
	_ string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	if s.roleAddErr != nil {
		return s.roleAddErr
	}
	s.roleAdds = append(s.roleAdds, roleChange{UserID: userID, RoleID: roleID})
	return nil
}

func (s *recordingSession) GuildMemberRoleRemove(
	_ string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	s.roleRemoves = append(s.roleRemoves, roleChange{UserID: userID, RoleID: roleID})
	return nil
}

func (s *recordingSession) GuildMemberNickname(
	_ string,
	userID string,
	nickname string,
	_ ...discordgo.RequestOption,
) error {
	if s.nicknameErr != nil {
		return s.nicknameErr
	}
	s.nicknames[userID] = nickname
	return nil
}

func (s *recordingSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	s.responses = append(s.responses, resp)
	return nil
}

func (s *recordingSession) InteractionResponseEdit(
	_ *discordgo.Interaction,
	edit *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.edits = append(s.edits, edit)
	return &discordgo.Message{}, nil
}

func (s *recordingSession) ChannelMessages(
	_ string,
	_ int,
	_ string,
	_ string,
	_ string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	return s.channelPosts, nil
}

func (s *recordingSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	if s.messageSendErr != nil {
		return nil, s.messageSendErr
	}
	s.messagesSent = append(
		s.messagesSent,
		stubChannelMessageSend{ChannelID: channelID, Content: message},
	)
	return &discordgo.Message{}, nil
}

func (s *recordingSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.embedsSent = append(s.embedsSent, channelEmbed{ChannelID: channelID, Embed: embed})
	return &discordgo.Message{}, nil
}

func (s *recordingSession) ChannelMessageSendComplex(
	_ string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.complexSent = append(s.complexSent, data)
	return &discordgo.Message{}, nil
}

func (s *recordingSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	if s.channelCreateErr != nil {
		return nil, s.channelCreateErr
	}
	s.dmsOpened = append(s.dmsOpened, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}
