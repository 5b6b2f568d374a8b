package service

import (
	"context"
	"errors"
	"fmt"

	workerpool "github.com/okian/restwell/internal/adapters/mq/worker"
	"github.com/okian/restwell/internal/adapters/repository"
	"github.com/okian/restwell/internal/domain/model"
)

// storePersister writes queued history events through a fresh store
// session per event.
type storePersister struct {
	store repository.Store
}

func (p *storePersister) Persist(ctx context.Context, ev model.HistoryEvent) (err error) { //nolint:gocritic // hugeParam: matches worker.Persister
	sess, err := p.store.Acquire(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch ev.Kind {
	case model.KindReading:
		err = sess.AppendReading(ctx, ev.Reading)
	case model.KindRecommendation:
		err = sess.AppendRecommendation(ctx, ev.Recommendation)
	default:
		return fmt.Errorf("%w: unknown event kind %d", workerpool.ErrPermanent, ev.Kind)
	}
	return classify(err)
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInvalidRecord), errors.Is(err, repository.ErrClosed):
		return fmt.Errorf("%w: %w", workerpool.ErrPermanent, err)
	default:
		return err
	}
}
