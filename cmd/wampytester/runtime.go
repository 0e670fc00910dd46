package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	wampConfig "github.com/wamp3hub/wampytester/config"
	wampEngine "github.com/wamp3hub/wampytester/engine"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
	wampShared "github.com/wamp3hub/wampytester/shared"
)

// runtime bundles what every command needs: settings, logger and a running engine
type runtime struct {
	settings *wampConfig.Settings
	logger   *slog.Logger
	engine   *wampEngine.Engine
	realms   *wampConfig.RealmsFile
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func loadSettings(c *cli.Command) (*wampConfig.Settings, error) {
	settings, e := wampConfig.LoadSettings(c.String("config"))
	if e != nil {
		return nil, fmt.Errorf("loading settings: %w", e)
	}
	if c.Bool("debug") {
		settings.Debug = true
	}
	if len(c.String("log-dir")) > 0 {
		settings.LogDir = c.String("log-dir")
	}
	return settings, nil
}

func newLogger(settings *wampConfig.Settings) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.LogLevel()}))
}

// startRuntime creates the engine and runs its foreground loop until close
func startRuntime(ctx context.Context, c *cli.Command, viewers ...wampEngine.Viewer) (*runtime, error) {
	settings, e := loadSettings(c)
	if e != nil {
		return nil, e
	}
	logger := newLogger(settings)
	slog.SetDefault(logger)

	serializer, e := wampSerializers.ByCode(settings.Serializer)
	if e != nil {
		return nil, e
	}

	realms := wampConfig.NewRealmsFile()
	if len(settings.RealmsFile) > 0 {
		realms, e = wampConfig.LoadRealms(settings.RealmsFile)
		if e != nil {
			return nil, fmt.Errorf("loading realms: %w", e)
		}
	}

	var dialStrategy func() wampShared.RetryStrategy
	retries := int(c.Int("dial-retries"))
	if retries > 0 {
		dialStrategy = func() wampShared.RetryStrategy {
			return wampShared.DialRetryStrategy(retries)
		}
	}

	engine, e := wampEngine.New(&wampEngine.Options{
		LogDir:       settings.LogDir,
		Serializer:   serializer,
		JoinTimeout:  settings.JoinTimeout.Duration,
		LeaveGrace:   settings.LeaveGrace.Duration,
		DialStrategy: dialStrategy,
		Logger:       logger,
	})
	if e != nil {
		return nil, e
	}
	engine.LoadRealms(realms)
	for _, viewer := range viewers {
		engine.AddViewer(viewer)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	instance := runtime{settings, logger, engine, realms, cancel, make(chan struct{})}
	go func() {
		defer close(instance.stopped)
		engine.Run(runCtx)
	}()
	logger.Info("message log created", "path", engine.LogPath())
	return &instance, nil
}

// routerURL prefers the explicit flag over the realms file
func (instance *runtime) routerURL(realm string, explicit string) (string, error) {
	if len(explicit) > 0 {
		return explicit, wampConfig.ValidateRouterURL(explicit)
	}
	config, found := instance.realms.Lookup(realm)
	if !found || len(config.RouterURL) == 0 {
		return "", fmt.Errorf("no router URL for realm %s, pass --router or add it to the realms file", realm)
	}
	return config.RouterURL, nil
}

// Close leaves every session and waits for the last log entry
func (instance *runtime) Close() {
	instance.engine.Close()
	<-instance.stopped
	instance.cancel()
}
