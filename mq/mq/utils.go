package mq

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type Subscriber[M any] interface {
	Subscribe(uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes service to topicID and forwards transformed messages to
// outputStream until ctx is done or the subscription channel closes. The returned channel
// is closed once the processor has unsubscribed. outputStream is never closed here, so
// several processors may share it.
func SubscribeProcessor[S Subscriber[M], M any, O any](
	ctx context.Context,
	topicID uuid.UUID,
	service S,
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) (<-chan struct{}, error) {
	uid, inputCh, err := service.Subscribe(topicID)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				slog.Debug("de-subscribe", "subscriber", uid, "error", err)
			}
		}()

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					return
				}

				output, skip, err := transformFunc(msg)
				if err != nil {
					slog.Warn("drop message", "subscriber", uid, "error", err)
					continue
				}
				if skip {
					continue
				}

				select {
				case outputStream <- output:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()
	return done, nil
}
