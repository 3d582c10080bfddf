package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/Rhoxio/ChongBot/chongbot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = chongbot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "chongbot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", chongbot.DefaultDatabase)
	viper.SetDefault(
		"database_slow_threshold",
		chongbot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		chongbot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", chongbot.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", chongbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", chongbot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.verify_channel_id", "")
	viper.SetDefault("discord.auto_logs_channel_id", "")
	viper.SetDefault("discord.notification_channel_id", "")
	viper.SetDefault("discord.unverified_role_id", "")
	viper.SetDefault("discord.verified_role_id", "")
	viper.SetDefault("discord.pug_role_id", "")
	viper.SetDefault("discord.prospect_role_id", "")
	viper.SetDefault("discord.guildie_role_id", "")
	viper.SetDefault("discord.officer_role_id", "")
	viper.SetDefault("discord.raider_role_id", "")
	viper.SetDefault("discord.trial_role_id", "")
	viper.SetDefault("discord.admin_user_ids", []string{})
	viper.SetDefault(
		"discord.log_level",
		chongbot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		chongbot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		chongbot.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault("discord.startup_message", chongbot.DefaultDiscordStartupMessage)

	// Raid Helper config
	viper.SetDefault("raid_helper.api_key", "")
	viper.SetDefault("raid_helper.base_url", chongbot.DefaultRaidHelperBaseURL)
	viper.SetDefault("raid_helper.event_window_days", chongbot.DefaultEventWindowDays)
	viper.SetDefault(
		"raid_helper.request_timeout",
		chongbot.DefaultRaidHelperRequestTimeout,
	)
	viper.SetDefault("raid_helper.fetch_interval", chongbot.DefaultEventFetchInterval)
	viper.SetDefault("raid_helper.send_delay", chongbot.DefaultReminderSendDelay)
	viper.SetDefault("raid_helper.timezone", chongbot.DefaultReminderTimezone)
	viper.SetDefault("raid_helper.check_schedule", chongbot.DefaultCheckSchedule)
	viper.SetDefault(
		"raid_helper.log_level",
		chongbot.DefaultRaidHelperLogLevel.String(),
	)

	// API config
	viper.SetDefault("api.listen", chongbot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", chongbot.DefaultAPILogLevel.String())
	viper.SetDefault("api.enable_pprof", false)
	viper.SetDefault("api.read_timeout", chongbot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		chongbot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", chongbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", chongbot.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		chongbot.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		chongbot.DefaultCORSAllowMethods,
	)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", chongbot.DefaultCORSMaxAge)

	envPrefix := os.Getenv(chongbot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = chongbot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"discord.admin_user_ids",
		viper.GetStringSlice("discord.admin_user_ids"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"raid_helper.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
