package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/api"
	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/events"
	"github.com/nixlim/fieldwatch/internal/logging"
	"github.com/nixlim/fieldwatch/internal/monitor"
	"github.com/nixlim/fieldwatch/internal/receiver"
	"github.com/nixlim/fieldwatch/internal/stats"
	"github.com/nixlim/fieldwatch/internal/survey"
	"github.com/nixlim/fieldwatch/internal/tui"
)

type serveOptions struct {
	headless bool
	debugLog string
	logFile  string
	stats    bool
}

func newServeCmd(c *cli) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receivers, the detection engine and the operator API",
		Long: `Start the HTTP and gRPC ingest receivers, the background detection
engine and the operator API. The dashboard runs in the terminal unless
--headless is given.

Examples:
  fieldwatch serve
  fieldwatch serve --headless
  fieldwatch serve --debug /tmp/ingest.jsonl --log-file /tmp/fieldwatch.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg, opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run without the terminal dashboard")
	cmd.Flags().StringVar(&opts.debugLog, "debug", "", "write an ingest debug log (JSONL) to the given path")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to the given path while the dashboard is shown")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "open the dashboard on the statistics view")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, opts serveOptions, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !opts.headless {
		out := io.Discard
		if opts.logFile != "" {
			f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("opening log file %q: %w", opts.logFile, err)
			}
			defer f.Close()
			out = f
		}
		logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "json", Output: out})
	}

	a, err := openApp(ctx, cfg,
		monitor.WithInterval(secondsOf(cfg.Detection.IntervalSeconds)),
		monitor.WithIngestTrigger(),
	)
	if err != nil {
		return err
	}

	var recvOpts []receiver.ReceiverOption
	if opts.debugLog != "" {
		debugFile, err := os.OpenFile(opts.debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("opening debug log %q: %w", opts.debugLog, err)
		}
		defer debugFile.Close()
		recvOpts = append(recvOpts, receiver.WithLogger(receiver.NewFileLogger(debugFile)))
	}

	eventBuf := events.NewRingBuffer(cfg.Display.EventBufferSize)
	a.manager.Subscribe(func(ev alerts.Event) {
		eventBuf.Add(events.FormatEvent(ev))
	})

	notify := cfg.Alerts.Notifications
	notifiers := []alerts.Notifier{alerts.NewPlatformNotifier(notify.SystemNotify)}
	var webhook *alerts.WebhookNotifier
	if notify.WebhookURL != "" {
		webhook = alerts.NewWebhookNotifier(alerts.WebhookConfig{
			URL:           notify.WebhookURL,
			RatePerMinute: notify.WebhookRatePerMinute,
			Timeout:       secondsOf(notify.WebhookTimeoutSeconds),
		})
		webhook.Start(ctx)
		notifiers = append(notifiers, webhook)
	}
	a.manager.Subscribe(alerts.NotificationListener(alerts.Severity(notify.MinSeverity), notifiers...))

	var watcher *survey.Watcher
	if cfg.Catalog.Watch {
		watcher, err = survey.NewWatcher(config.ExpandHome(cfg.Catalog.Path), a.catalog)
		if err != nil {
			logging.Warn().Err(err).Msg("catalog reload disabled")
		} else {
			watcher.OnReload(func(n int) {
				logging.Info().Int("surveys", n).Msg("survey catalog reloaded")
				a.engine.Trigger()
			})
			watcher.Start(ctx)
		}
	}

	calc := stats.NewCalculator(0, 0)
	recv := receiver.New(cfg.Receiver, a.store, recvOpts...)
	srv := api.New(cfg.API, a.manager,
		api.WithRefresher(a.engine),
		api.WithCalculator(calc),
	)

	// Each server lives in the group until the context ends. A server that
	// fails to bind cancels the group and with it the others.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := recv.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		recv.Stop()
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		srv.Stop()
		return nil
	})

	shutdownMgr := tui.NewShutdownManager()
	shutdownMgr.StopServers = func(context.Context) error {
		stop()
		return g.Wait()
	}
	shutdownMgr.StopEngine = func() {
		a.engine.Stop()
		if watcher != nil {
			watcher.Stop()
		}
		if webhook != nil {
			webhook.Stop()
		}
	}
	shutdownMgr.Cleanup = a.Close

	a.engine.Start(gctx)

	if opts.headless {
		fmt.Fprintf(stderr, "fieldwatch: serving (ingest http :%d grpc :%d, api :%d)\n",
			cfg.Receiver.HTTPPort, cfg.Receiver.GRPCPort, cfg.API.Port)
		<-gctx.Done()
		return shutdownMgr.Shutdown()
	}

	startView := tui.ViewDashboard
	if opts.stats {
		startView = tui.ViewStats
	}
	modelOpts := []tui.ModelOption{
		tui.WithAlertManager(a.manager),
		tui.WithEventProvider(eventBuf),
		tui.WithRefresher(a.engine),
		tui.WithCalculator(calc),
		tui.WithStartView(startView),
		tui.WithPersistenceFlag(a.persistent),
	}
	if wm, ok := a.droppedWrites(); ok {
		modelOpts = append(modelOpts, tui.WithWriteMonitor(wm))
	}

	p := tea.NewProgram(tui.NewModel(cfg, modelOpts...),
		tea.WithAltScreen(),
	)

	go func() {
		<-gctx.Done()
		p.Quit()
	}()

	_, runErr := p.Run()
	if err := shutdownMgr.Shutdown(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
