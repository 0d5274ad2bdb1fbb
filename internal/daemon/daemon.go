package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/feedbackbot/internal/config"
	"github.com/harun/feedbackbot/internal/logger"
	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/internal/telegram"
	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/harun/feedbackbot/pkg/channels"
	"github.com/harun/feedbackbot/pkg/commandqueue"
	"github.com/harun/feedbackbot/pkg/cron"
	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/harun/feedbackbot/pkg/health"
	"github.com/harun/feedbackbot/pkg/report"
	"github.com/rs/zerolog"
)

// ShutdownTimeout bounds each shutdown step.
const ShutdownTimeout = 10 * time.Second

// Daemon represents the feedbackbot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	ledger    *Ledger
	tracker   *dialogue.Tracker
	queue     *commandqueue.CommandQueue
	dedupe    *messageDedupeCache
	scheduler *cron.Scheduler
	reporter  *report.Reporter

	// Services
	channelRegistry *channels.Registry
	telegramBot     *telegram.Bot
	healthServer    *health.Server

	// Internal
	eventLoop *EventLoop
	router    *Router
	lifecycle *LifecycleManager

	// Options
	extraChannels   []channels.Channel
	clock           cron.Clock
	healthListener  net.Listener
	maintenanceTick time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithChannel registers an extra channel. When any channel is supplied the
// Telegram bot is not created.
func WithChannel(ch channels.Channel) Option {
	return func(d *Daemon) {
		d.extraChannels = append(d.extraChannels, ch)
	}
}

// WithClock sets the scheduler clock.
func WithClock(clock cron.Clock) Option {
	return func(d *Daemon) {
		d.clock = clock
	}
}

// WithHealthListener serves the health endpoint on ln instead of the
// configured host and port.
func WithHealthListener(ln net.Listener) Option {
	return func(d *Daemon) {
		d.healthListener = ln
	}
}

// WithMaintenanceInterval sets how often the event loop refreshes gauges.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(d *Daemon) {
		d.maintenanceTick = interval
	}
}

var newTelegramBot = func(opts telegram.Options) (*telegram.Bot, error) {
	return telegram.New(opts)
}

// New builds every component once, in dependency order. Any error is a
// startup failure.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	if len(d.extraChannels) == 0 {
		if err := cfg.RequireBotToken(); err != nil {
			cancel()
			return nil, err
		}
	}

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry(tracing.ServiceName); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(cfg.DataDir, d.logger.Component("lifecycle"))

	return d, nil
}

func (d *Daemon) zl() zerolog.Logger {
	return d.logger.GetZerolog()
}

func (d *Daemon) abort() {
	d.cancel()
	if d.ledger != nil {
		_ = d.ledger.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

func (d *Daemon) initializeCoreModules() error {
	cfg := d.config
	log := d.zl()

	if cfg.DataDir != "" {
		if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
			log.Warn().Err(err).Msg("Failed to open audit log, using stderr")
		}
	}

	openCtx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	lg, err := OpenLedger(openCtx, cfg, d.logger.Component("ledger"))
	if err != nil {
		return err
	}
	d.ledger = lg
	log.Info().
		Str("driver", cfg.Ledger.Driver).
		Str("table", lg.Table.Name).
		Msg("Ledger ready")

	messages := cfg.Dialogue.Messages
	var now func() time.Time
	if d.clock != nil {
		now = d.clock.Now
	}
	d.tracker, err = dialogue.NewTracker(lg.Writer, dialogue.Options{
		Messages:   &messages,
		Now:        now,
		SessionTTL: cfg.SessionTTL(),
		Logger:     d.logger.Component("dialogue"),
	})
	if err != nil {
		return err
	}

	d.queue = commandqueue.New(
		commandqueue.WithLogger(d.logger.Component("queue")),
		commandqueue.WithWaitWarning(10*time.Second, nil),
	)
	d.dedupe = newMessageDedupeCache(time.Duration(cfg.Telegram.DedupeTTLSeconds) * time.Second)
	return nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config

	d.channelRegistry = channels.NewRegistry(func(ctx context.Context, msg channels.InboundMessage) error {
		return d.router.Dispatch(ctx, msg)
	})
	d.router = NewRouter(d.tracker, d.queue, d.channelRegistry, d.dedupe, d.logger.Component("router"))

	if len(d.extraChannels) == 0 {
		bot, err := newTelegramBot(telegram.Options{
			Token:            cfg.Telegram.BotToken,
			PollTimeout:      cfg.Telegram.PollTimeout,
			RegisterCommands: cfg.Telegram.RegisterCommands,
			Logger:           d.logger.Component("telegram"),
		})
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		d.telegramBot = bot
		d.extraChannels = append(d.extraChannels, bot)
	}
	for _, ch := range d.extraChannels {
		if err := d.channelRegistry.Register(ch); err != nil {
			return err
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var deliverers []report.Deliverer
	if d.telegramBot != nil && len(cfg.Schedule.ReportChatIDs) > 0 {
		deliverers = append(deliverers, telegram.NewChatDeliverer(d.telegramBot, cfg.Schedule.ReportChatIDs))
	}
	d.reporter = NewReporter(cfg, d.ledger.Reader, d.logger.Component("report"), deliverers...)

	d.scheduler = cron.New(cron.Options{
		Location: loc,
		Clock:    d.clock,
		Timeout:  cfg.TaskTimeout(),
		Logger:   d.logger.Component("scheduler"),
	})
	if cfg.Schedule.Enabled {
		if err := d.scheduler.Register(cron.Task{
			Name:   cfg.Schedule.Task,
			Spec:   cfg.Schedule.Trigger,
			Action: d.reporter.Run,
		}); err != nil {
			return fmt.Errorf("failed to register %s: %w", cfg.Schedule.Task, err)
		}
	}

	d.healthServer = health.NewServer(health.Options{
		Host:   cfg.Health.Host,
		Port:   cfg.Health.Port,
		Body:   cfg.Health.Body,
		Logger: d.logger.Component("health"),
	})

	d.eventLoop = NewEventLoop(d.tracker, d.queue, d.maintenanceTick, d.logger.Component("eventloop"))
	return nil
}

// NewReporter builds the weekly report task body. The structured log is
// always a deliverer.
func NewReporter(cfg *config.Config, source report.Source, log zerolog.Logger, extra ...report.Deliverer) *report.Reporter {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	deliverers := append([]report.Deliverer{report.LogDeliverer{Logger: log}}, extra...)
	return report.NewReporter(source, deliverers, report.Options{
		Lookback: cfg.Lookback(),
		Location: loc,
		Logger:   log,
	})
}

// Start runs every service. A failure stops what was already started.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	ctx := tracing.WithTraceID(d.ctx, tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, d.zl())
	logger.Info().Msg("Starting feedbackbot daemon")

	if err := d.start(ctx); err != nil {
		logger.Error().Err(err).Msg("Startup failed")
		_ = d.Stop()
		return err
	}

	logger.Info().
		Strs("channels", d.channelRegistry.Names()).
		Str("health", d.healthAddr()).
		Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// Health server first so the platform sees the port open
	ln := d.healthListener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", d.healthServer.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", d.healthServer.Addr(), err)
		}
	}
	d.healthListener = ln
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.healthServer.Serve(ln); err != nil {
			d.logger.Error().Err(err).Msg("Health server failed")
		}
	}()

	if err := d.channelRegistry.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start ingress channels: %w", err)
	}

	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, e := range d.scheduler.Entries() {
		d.logger.Info().Str("task", e.Name).Time("next", e.Next).Msg("Scheduled task armed")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	return nil
}

func (d *Daemon) healthAddr() string {
	if d.healthListener != nil {
		return d.healthListener.Addr().String()
	}
	return d.healthServer.Addr()
}

// Stop shuts services down in reverse order. Calling it twice is an error.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, d.zl())
	logger.Info().Msg("Stopping feedbackbot daemon")

	var errs []error

	// No new events
	stopCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	if err := d.channelRegistry.StopAll(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop ingress channels")
		errs = append(errs, err)
	}
	cancel()

	d.scheduler.Stop()
	logger.Info().Msg("Scheduler stopped")

	// Let queued events reach the ledger
	d.eventLoop.HandleShutdown(ShutdownTimeout)
	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	logger.Info().Msg("Command queue stopped")

	stopCtx, cancel = context.WithTimeout(ctx, ShutdownTimeout)
	if err := d.healthServer.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop health server")
		errs = append(errs, err)
	}
	cancel()

	// Cancel context
	d.cancel()

	// Wait for goroutines to finish (with timeout)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.ledger.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close ledger")
		errs = append(errs, err)
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	// Close audit logger
	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped")
	return errors.Join(errs...)
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	PID       int
	// ActiveSessions counts users with an open feedback prompt.
	ActiveSessions int
	Tasks          []cron.EntryInfo
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:        d.running,
		PID:            os.Getpid(),
		ActiveSessions: d.tracker.Active(),
		Tasks:          d.scheduler.Entries(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-d.ctx.Done():
		return
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetTracker returns the session tracker
func (d *Daemon) GetTracker() *dialogue.Tracker {
	return d.tracker
}

// GetLedger returns the opened ledger
func (d *Daemon) GetLedger() *Ledger {
	return d.ledger
}

// GetScheduler returns the scheduler
func (d *Daemon) GetScheduler() *cron.Scheduler {
	return d.scheduler
}

// GetRouter returns the message router
func (d *Daemon) GetRouter() *Router {
	return d.router
}

// GetChannelRegistry returns the channel registry
func (d *Daemon) GetChannelRegistry() *channels.Registry {
	return d.channelRegistry
}

// GetTelegramBot returns the Telegram bot, nil when channels were injected
func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}

// HealthAddr returns the address the health endpoint listens on.
func (d *Daemon) HealthAddr() string {
	return d.healthAddr()
}

