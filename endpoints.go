package wamp

import "log/slog"

type PublishEndpoint func(PublicationEvent)

func (subscription *Subscription) execute(logger *slog.Logger, event PublicationEvent) {
	if subscription.endpoint == nil {
		return
	}
	defer func() {
		r := recover()
		if r != nil {
			logger.Error(
				"subscription endpoint panicked",
				"panic", r,
				slog.Group("subscription", "ID", subscription.ID, "topic", subscription.Topic),
			)
		}
	}()
	subscription.endpoint(event)
}
