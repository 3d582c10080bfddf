package chongbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	defaultLogWriter io.Writer = os.Stdout

	structValidator = validator.New()
)

//nolint:gochecknoinits // gotta register the validator tag name
func init() {
	structValidator.SetTagName("binding")
}

// Set at build time via:
// -ldflags "-X github.com/Rhoxio/ChongBot/chongbot.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// ChongBot is the Chonglers community bot: raid signup reminders on a
// daily schedule, the member verification flow, slash commands, and a
// small health API.
type ChongBot struct {
	config *Config

	logger     *slog.Logger
	logHandler slog.Handler

	discord    *Discord
	raidHelper *RaidHelperClient
	db         *gorm.DB
	scheduler  *scheduler
	api        *API

	usernames *usernameCache

	// reminderLoc is the community timezone, used for all raid time
	// rendering and the check schedule
	reminderLoc *time.Location

	startedAt time.Time
	runMu     sync.Mutex
}

// New assembles a ChongBot from the given config. The bot doesn't
// touch the network until Run is called.
func New(config *Config) (*ChongBot, error) {
	var errs []error

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &ChongBot{
		config:    config,
		usernames: newUsernameCache(),
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     b.config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	loc, err := time.LoadLocation(config.RaidHelper.Timezone)
	if err != nil {
		errs = append(
			errs,
			fmt.Errorf("invalid timezone %q: %w", config.RaidHelper.Timezone, err),
		)
		loc = time.UTC
	}
	b.reminderLoc = loc

	b.config.Discord.httpClient = b.config.HTTPClient

	disc, err := newDiscord(b.config.Discord)
	if err != nil {
		errs = append(errs, err)
	} else {
		discordgo.Logger = discordgoLoggerFunc(
			context.Background(),
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.Discord.DiscordGoLogLevel,
					AddSource: true,
				},
			).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
		)
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.bot = b
		b.discord = disc
	}

	b.raidHelper = newRaidHelperClient(
		b.config.RaidHelper,
		b.config.HTTPClient,
		slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.RaidHelper.LogLevel,
					AddSource: true,
				},
			),
		),
	)

	sched, err := newScheduler(
		b.config.RaidHelper, b.reminderLoc, b.logger, func(ctx context.Context) {
			b.PerformSignupCheck(ctx, false)
		},
	)
	if err != nil {
		errs = append(errs, err)
	}
	b.scheduler = sched

	api, err := newAPI(b, config.API)
	if err != nil {
		errs = append(errs, err)
	}
	b.api = api

	return b, errors.Join(errs...)
}

func (b *ChongBot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

// RegisterSlashCommands registers the bot's slash commands with
// Discord via bulk overwrite.
func (b *ChongBot) RegisterSlashCommands(
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return b.discord.registerCommands(options...)
}

// Run starts the bot and blocks until the context is canceled or a
// fatal error occurs. Startup: database, gateway connection, command
// registration, verification message, member sweep, then the
// scheduler and the API server.
func (b *ChongBot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	startupTimeout := b.config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}
	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	defer startCancel()

	db, err := CreateDB(
		startCtx,
		b.config.Database,
		b.gormLogHandler(),
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		logger.Error("error initializing database", tint.Err(err))
		return err
	}
	b.db = db

	if err = b.startDiscord(startCtx); err != nil {
		return err
	}
	defer func() {
		if closeErr := b.discord.session.Close(); closeErr != nil {
			logger.Error("error closing discord session", tint.Err(closeErr))
		}
	}()

	b.scheduler.start()
	defer func() {
		stopped := b.scheduler.stop()
		<-stopped.Done()
	}()

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			if serveErr := b.api.Serve(runCtx); serveErr != nil &&
				!errors.Is(serveErr, http.ErrServerClosed) {
				return serveErr
			}
			return nil
		},
	)
	g.Go(
		func() error {
			<-runCtx.Done()
			return b.shutdownAPI()
		},
	)

	logger.InfoContext(ctx, "chongbot running", "config", b.config)
	return g.Wait()
}

// RunSignupCheckOnce connects to Discord, runs a single raid signup
// check, and disconnects. Used by the `check` CLI command; the
// persistent surfaces (scheduler, API, verification message) are not
// started.
func (b *ChongBot) RunSignupCheckOnce(
	ctx context.Context,
	dryRun bool,
) (SignupCheckResult, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	startupTimeout := b.config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}
	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	defer startCancel()

	db, err := CreateDB(
		startCtx,
		b.config.Database,
		b.gormLogHandler(),
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return SignupCheckResult{}, err
	}
	b.db = db

	session, err := b.discord.newSession()
	if err != nil {
		return SignupCheckResult{}, err
	}
	b.discord.session = session
	session.AddHandler(b.discord.handlerReady())
	session.AddHandler(b.discord.handlerConnect())
	session.AddHandler(b.discord.handlerDisconnect())

	if err = session.Open(); err != nil {
		return SignupCheckResult{}, fmt.Errorf("error opening discord session: %w", err)
	}
	defer func() {
		_ = session.Close()
	}()
	if _, err = b.discord.waitReady(startCtx); err != nil {
		return SignupCheckResult{}, err
	}

	return b.PerformSignupCheck(ctx, dryRun), nil
}

// startDiscord opens the gateway connection, registers handlers and
// slash commands, and performs the startup verification housekeeping.
func (b *ChongBot) startDiscord(ctx context.Context) error {
	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.handlerGuildMemberAdd()),
		session.AddHandler(b.handlerInteractionCreate()),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	botUserID, err := b.discord.waitReady(ctx)
	if err != nil {
		return err
	}

	if _, err = b.RegisterSlashCommands(); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	if err = b.ensureVerificationMessage(ctx, botUserID); err != nil {
		b.logger.ErrorContext(
			ctx, "error ensuring verification message", tint.Err(err),
		)
	}
	if _, err = b.sweepUnverifiedRoles(ctx); err != nil {
		b.logger.ErrorContext(ctx, "member role sweep failed", tint.Err(err))
	}

	if statusErr := b.discord.updateCustomStatus(
		"Watching raid signups",
	); statusErr != nil {
		b.logger.WarnContext(ctx, "could not set custom status", tint.Err(statusErr))
	}

	return nil
}

func (b *ChongBot) shutdownAPI() error {
	shutdownTimeout := b.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return b.api.httpServer.Shutdown(closeCtx)
}

func (b *ChongBot) gormLogHandler() slog.Handler {
	return tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     b.config.DatabaseLogLevel,
			AddSource: true,
		},
	)
}
