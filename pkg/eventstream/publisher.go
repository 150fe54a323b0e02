package eventstream

import (
	"context"
	"errors"
)

// Publisher publishes events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

type multiPublisher struct {
	pubs []Publisher
}

// Multi returns a Publisher that delivers every event to each of pubs.
// Errors from individual publishers are joined; one failing publisher does
// not stop delivery to the rest.
func Multi(pubs ...Publisher) Publisher {
	return &multiPublisher{pubs: pubs}
}

func (m *multiPublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrNilEvent
	}
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
