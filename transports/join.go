package wampTransports

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	wamp "github.com/wamp3hub/wampytester"
	wampSerializers "github.com/wamp3hub/wampytester/serializers"
	wampShared "github.com/wamp3hub/wampytester/shared"
)

type JoinOptions struct {
	Serializer     wamp.Serializer
	Details        wamp.Details
	JoinTimeout    time.Duration
	LoggingHandler slog.Handler
	// consulted between failed dials, nil means a single attempt
	DialStrategy wampShared.RetryStrategy
}

// Connect opens a transport chosen by the router URL scheme:
// ws/wss speak WebSocket, tcp/unix speak RawSocket
func Connect(
	ctx context.Context,
	routerURL string,
	serializer wamp.Serializer,
) (wamp.Transport, error) {
	address, e := url.Parse(routerURL)
	if e != nil {
		return nil, fmt.Errorf("invalid router URL %q: %w", routerURL, e)
	}
	switch address.Scheme {
	case "ws", "wss":
		return dialWebsocket(ctx, routerURL, serializer)
	case "tcp":
		return dialRawSocket(ctx, "tcp", address.Host, serializer)
	case "unix":
		path := address.Path
		if len(path) == 0 {
			path = address.Opaque
		}
		return dialRawSocket(ctx, "unix", path, serializer)
	}
	return nil, fmt.Errorf("unsupported router URL scheme %q", address.Scheme)
}

func connectWithRetry(
	ctx context.Context,
	routerURL string,
	serializer wamp.Serializer,
	strategy wampShared.RetryStrategy,
	logger *slog.Logger,
) (wamp.Transport, error) {
	for {
		logger.Debug("connecting...")
		transport, e := Connect(ctx, routerURL, serializer)
		if e == nil {
			logger.Debug("successfully connected")
			return transport, nil
		}
		if strategy.Done() {
			logger.Error("during connect", "error", e, "attempts", strategy.AttemptNumber()+1)
			return nil, e
		}
		sleepDuration := strategy.Next()
		logger.Warn("during connect, retrying", "error", e, "duration", sleepDuration)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepDuration):
		}
	}
}

// Join connects to routerURL and joins realm
func Join(
	ctx context.Context,
	routerURL string,
	realm string,
	joinOptions *JoinOptions,
) (*wamp.Session, error) {
	if joinOptions == nil {
		joinOptions = new(JoinOptions)
	}
	if joinOptions.Serializer == nil {
		joinOptions.Serializer = wampSerializers.DefaultSerializer
	}
	if joinOptions.DialStrategy == nil {
		joinOptions.DialStrategy = wampShared.DontRetryStrategy()
	}
	if joinOptions.LoggingHandler == nil {
		joinOptions.LoggingHandler = slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{AddSource: false, Level: slog.LevelInfo},
		)
	}

	logger := slog.New(joinOptions.LoggingHandler)
	joinOptionsLogData := slog.Group(
		"options",
		"realm", realm,
		"address", routerURL,
		"serializer", joinOptions.Serializer.Code(),
	)
	logger.Debug("trying to join", joinOptionsLogData)

	transport, e := connectWithRetry(
		ctx, routerURL, joinOptions.Serializer, joinOptions.DialStrategy,
		logger.With("name", "Connect", joinOptionsLogData),
	)
	if e != nil {
		return nil, e
	}

	session, e := wamp.Join(ctx, transport, realm, &wamp.JoinOptions{
		Details: joinOptions.Details,
		Timeout: joinOptions.JoinTimeout,
		Logger:  logger,
	})
	if e != nil {
		logger.Error("during join", "error", e, joinOptionsLogData)
		return nil, e
	}
	logger.Debug("successfully joined", joinOptionsLogData, "sessionID", session.ID)
	return session, nil
}
