//nolint:lll // struct tags can't be split
package chongbot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "CHONGBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "CB"

	DefaultDatabase              = "chongbot.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages
	DefaultDiscordStartupMessage = "ChongBot reporting for duty!"

	DefaultRaidHelperBaseURL  = "https://raid-helper.dev/api"
	DefaultRaidHelperLogLevel = slog.LevelInfo

	// DefaultEventWindowDays is how far ahead the daily check looks
	// for raid events needing sign-ups.
	DefaultEventWindowDays = 3

	// DefaultEventFetchInterval paces the per-event detail fetches
	// against the Raid Helper API.
	DefaultEventFetchInterval = 50 * time.Millisecond

	// DefaultReminderSendDelay is the pause between successive reminder
	// DMs, to stay under the Discord rate limit.
	DefaultReminderSendDelay = 100 * time.Millisecond

	DefaultRaidHelperRequestTimeout = 15 * time.Second

	// DefaultReminderTimezone is the community's home timezone. Raid
	// times in reminder messages are always rendered in this zone.
	DefaultReminderTimezone = "America/Los_Angeles"

	// DefaultCheckSchedule runs the signup check daily at 4:30 PM,
	// in the reminder timezone.
	DefaultCheckSchedule = "30 16 * * *"

	DefaultAPIListen         = "127.0.0.1:5000"
	DefaultAPILogLevel       = slog.LevelInfo
	defaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	discordMaxNicknameLength = 32
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Cache-Control",
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

// Config is the top-level ChongBot configuration.
type Config struct {
	// Database is the SQLite database path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// RaidHelper configures the Raid Helper API integration and the
	// daily signup check
	RaidHelper *RaidHelperConfig `yaml:"raid_helper" mapstructure:"raid_helper" json:"raid_helper"`

	// API configures the health/status HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself, including the
// guild, channel and role IDs the verification and reminder flows
// operate on.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID is the community's guild. ChongBot is a single-guild bot.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id" binding:"required"`

	// VerifyChannelID is where the persistent verification message lives
	VerifyChannelID string `yaml:"verify_channel_id" mapstructure:"verify_channel_id" json:"verify_channel_id"`

	// AutoLogsChannelID receives an embed when a member completes verification
	AutoLogsChannelID string `yaml:"auto_logs_channel_id" mapstructure:"auto_logs_channel_id" json:"auto_logs_channel_id"`

	// NotificationChannelID receives the startup message when the bot connects
	NotificationChannelID string `yaml:"notification_channel_id" mapstructure:"notification_channel_id" json:"notification_channel_id"`

	// UnverifiedRoleID is held by members who haven't completed verification
	UnverifiedRoleID string `yaml:"unverified_role_id" mapstructure:"unverified_role_id" json:"unverified_role_id"`

	// VerifiedRoleID is granted on manual verification
	VerifiedRoleID string `yaml:"verified_role_id" mapstructure:"verified_role_id" json:"verified_role_id"`

	// Community roles, selected during verification
	PugRoleID      string `yaml:"pug_role_id" mapstructure:"pug_role_id" json:"pug_role_id"`
	ProspectRoleID string `yaml:"prospect_role_id" mapstructure:"prospect_role_id" json:"prospect_role_id"`
	GuildieRoleID  string `yaml:"guildie_role_id" mapstructure:"guildie_role_id" json:"guildie_role_id"`

	// Raid roles. Members holding RaiderRoleID or TrialRoleID are
	// eligible for raid signup reminders.
	OfficerRoleID string `yaml:"officer_role_id" mapstructure:"officer_role_id" json:"officer_role_id"`
	RaiderRoleID  string `yaml:"raider_role_id" mapstructure:"raider_role_id" json:"raider_role_id"`
	TrialRoleID   string `yaml:"trial_role_id" mapstructure:"trial_role_id" json:"trial_role_id"`

	// AdminUserIDs are allow-listed for admin slash commands, in
	// addition to anyone with the ManageRoles permission
	AdminUserIDs []string `yaml:"admin_user_ids" mapstructure:"admin_user_ids" json:"admin_user_ids"`

	// StartupMessage is sent to NotificationChannelID when the bot
	// connects to the discord gateway, if both are set
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

// RaidHelperConfig configures the Raid Helper API client and the
// daily raid signup check.
//
//nolint:lll // can't break tags
type RaidHelperConfig struct {
	// Raid Helper API key (refresh with /apikey in Discord)
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`

	// BaseURL of the Raid Helper API
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url" binding:"required,url"`

	// EventWindowDays is how many days ahead to fetch events
	EventWindowDays int `yaml:"event_window_days" mapstructure:"event_window_days" json:"event_window_days" binding:"min=1"`

	// RequestTimeout applies per API call. There is no automatic retry.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout" binding:"min=1s"`

	// FetchInterval is the minimum spacing between per-event detail fetches
	FetchInterval time.Duration `yaml:"fetch_interval" mapstructure:"fetch_interval" json:"fetch_interval"`

	// SendDelay is the pause between successive reminder DMs
	SendDelay time.Duration `yaml:"send_delay" mapstructure:"send_delay" json:"send_delay"`

	// Timezone is the IANA zone raid times are rendered in
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone" binding:"required"`

	// CheckSchedule is the cron expression for the daily check,
	// evaluated in Timezone
	CheckSchedule string `yaml:"check_schedule" mapstructure:"check_schedule" json:"check_schedule" binding:"required"`

	// Raid Helper client log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// APIConfig configures the health/status HTTP server
//
//nolint:lll // can't break tags
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"hostname|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// EnablePprof mounts the pprof handlers under /debug
	EnablePprof bool `yaml:"enable_pprof" mapstructure:"enable_pprof" json:"enable_pprof"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"min=1s"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"min=1s"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
}

func DefaultCORSConfig() CORSConfig {
	defaultMethods := make([]string, len(DefaultCORSAllowMethods))
	copy(defaultMethods, DefaultCORSAllowMethods)

	defaultHeaders := make([]string, len(DefaultCORSAllowHeaders))
	copy(defaultHeaders, DefaultCORSAllowHeaders)

	return CORSConfig{
		AllowOrigins: []string{},
		AllowMethods: defaultMethods,
		AllowHeaders: defaultHeaders,
		MaxAge:       DefaultCORSMaxAge,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	raidHelperLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	raidHelperLogLevel.Set(DefaultRaidHelperLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultDiscordStartupMessage,
		},
		RaidHelper: &RaidHelperConfig{
			BaseURL:         DefaultRaidHelperBaseURL,
			EventWindowDays: DefaultEventWindowDays,
			RequestTimeout:  DefaultRaidHelperRequestTimeout,
			FetchInterval:   DefaultEventFetchInterval,
			SendDelay:       DefaultReminderSendDelay,
			Timezone:        DefaultReminderTimezone,
			CheckSchedule:   DefaultCheckSchedule,
			LogLevel:        raidHelperLogLevel,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			CORS:              DefaultCORSConfig(),
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
