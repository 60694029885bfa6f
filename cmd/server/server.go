package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	c "github.com/quesurifn/calendar-adapter/calendar"
	h "github.com/quesurifn/calendar-adapter/handlers"
	"github.com/quesurifn/calendar-adapter/pkg/config"
	"github.com/quesurifn/calendar-adapter/store"
	t "github.com/quesurifn/calendar-adapter/types"
)

var (
	cfg        *config.Config
	configFile string
	logger     *zap.Logger
)

var serverCmd = &cobra.Command{
	Use:           "calendar-adapter",
	Short:         "Serve the calendar adapter HTTP API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg.Debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return err
		}
		cfg.Logger = logger

		host, port := appConfig.Host, appConfig.Port
		if err := cfg.Load(&appConfig, configFile); err != nil {
			return err
		}
		// Flags given on the command line win over files and env.
		if cmd.Flags().Changed("host") {
			appConfig.Host = host
		}
		if cmd.Flags().Changed("port") {
			appConfig.Port = port
		}

		if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
			logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		syncLogger()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cal, err := openCalendar(ctx)
	if err != nil {
		return err
	}
	defer cal.Close()

	requestTimeout, err := parseDuration("request timeout", appConfig.RequestTimeout)
	if err != nil {
		return err
	}
	expiration, err := parseDuration("limiter expiration", appConfig.Limiter.Expiration)
	if err != nil {
		return err
	}

	feed := c.NewFeed(logger)
	scheduler, err := scheduleFeeds(cal, feed, requestTimeout)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	app := fiber.New(fiber.Config{
		AppName:               appConfig.AppName,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          h.ErrorHandler(logger),
	})
	fiberLogger := fiberzap.New(fiberzap.Config{
		Logger: logger,
	})
	fiberLimiter := limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			ip := net.ParseIP(c.IP())
			return ip != nil && ip.IsLoopback()
		},
		Max:        appConfig.Limiter.Max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(t.ErrorResponse{Error: "Too many requests"})
		},
	})

	app.Use(recover.New())
	app.Use(fiberLimiter)
	app.Use(fiberLogger)

	handlers := h.Handlers{
		Logger:   logger,
		Calendar: cal,
		Feed:     feed,
		Timeout:  requestTimeout,
	}
	handlers.Register(app)

	addr := net.JoinHostPort(appConfig.Host, appConfig.Port)
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("calendar", cal.Name()))
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

// openCalendar opens the configured store and the adapter over it.
func openCalendar(ctx context.Context) (*c.Calendar, error) {
	opts, err := calendarOptions(appConfig.Calendar)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, storeOptions(appConfig.Store, opts.Name), logger)
	if err != nil {
		return nil, err
	}
	return c.New(s, opts, logger), nil
}

func syncLogger() {
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
		os.Stderr.WriteString(err.Error() + "\n")
	}
}

func init() {
	cfg = config.New(&config.Settings{ENVPrefix: "CAL_ADAPTER"})

	serverCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yml", "config file (yaml, toml or json)")
	serverCmd.PersistentFlags().BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "Debug Mode")
	serverCmd.Flags().StringVarP(&appConfig.Host, "host", "H", "", "app server host")
	serverCmd.Flags().StringVarP(&appConfig.Port, "port", "p", "", "app server port")

	serverCmd.AddCommand(importCmd)
}

func main() {
	if err := serverCmd.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(-1)
	}
}
