package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/restwell/internal/adapters/mq/queue"
	worker "github.com/okian/restwell/internal/adapters/mq/worker"
	model "github.com/okian/restwell/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// mockPersister records persisted events and can fail a set number of times per ID.
type mockPersister struct {
	mu        sync.Mutex
	persisted []string
	failures  map[string]int
	err       error
	calls     map[string]int
}

func newMockPersister() *mockPersister {
	return &mockPersister{failures: map[string]int{}, calls: map[string]int{}}
}

func (m *mockPersister) Persist(_ context.Context, ev model.HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ev.ID]++
	if m.failures[ev.ID] > 0 {
		m.failures[ev.ID]--
		if m.err != nil {
			return m.err
		}
		return errors.New("transient")
	}
	m.persisted = append(m.persisted, ev.ID)
	return nil
}

func (m *mockPersister) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.persisted...)
}

func (m *mockPersister) callsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func event(id string) model.HistoryEvent {
	return model.HistoryEvent{
		ID:      id,
		Kind:    model.KindReading,
		Reading: model.ParameterReading{ID: id, UserID: "u1", RecordedAt: time.Now()},
	}
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers over a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		p := newMockPersister()
		pool := worker.NewPool(4, q, p, worker.WithRetry(3, time.Millisecond))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When events are enqueued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(context.Background(), event(fmt.Sprint(i))), convey.ShouldBeNil)
			}
			pool.Start(context.Background())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := pool.Shutdown(ctx)

			convey.Convey("Then every pending event is persisted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(p.ids()), convey.ShouldEqual, 20)
			})
		})
	})

	convey.Convey("Given a pool that was never started", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, newMockPersister())

		convey.Convey("Then shutdown closes the queue and returns", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(errors.Is(q.Enqueue(context.Background(), event("x")), queue.ErrClosed), convey.ShouldBeTrue)
		})
	})
}

func TestRetry(t *testing.T) {
	convey.Convey("Given a persister that fails transiently", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		p := newMockPersister()
		p.failures["flaky"] = 2

		var (
			mu     sync.Mutex
			failed []string
		)
		pool := worker.NewPool(1, q, p,
			worker.WithRetry(3, time.Millisecond),
			worker.WithFailureHook(func(ev model.HistoryEvent, _ error) {
				mu.Lock()
				failed = append(failed, ev.ID)
				mu.Unlock()
			}),
		)

		convey.Convey("When the failures stay within the retry budget", func() {
			convey.So(q.Enqueue(context.Background(), event("flaky")), convey.ShouldBeNil)
			pool.Start(context.Background())
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the event is eventually persisted", func() {
				convey.So(p.ids(), convey.ShouldResemble, []string{"flaky"})
				convey.So(p.callsFor("flaky"), convey.ShouldEqual, 3)
				convey.So(failed, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the failures exceed the retry budget", func() {
			p.failures["doomed"] = 10
			convey.So(q.Enqueue(context.Background(), event("doomed")), convey.ShouldBeNil)
			pool.Start(context.Background())
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the failure hook is called", func() {
				convey.So(p.ids(), convey.ShouldBeEmpty)
				convey.So(p.callsFor("doomed"), convey.ShouldEqual, 3)
				convey.So(failed, convey.ShouldResemble, []string{"doomed"})
			})
		})
	})

	convey.Convey("Given a persister failing permanently", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		p := newMockPersister()
		p.failures["bad"] = 10
		p.err = fmt.Errorf("invalid payload: %w", worker.ErrPermanent)
		pool := worker.NewPool(1, q, p, worker.WithRetry(5, time.Millisecond))

		convey.Convey("Then it is attempted only once", func() {
			convey.So(q.Enqueue(context.Background(), event("bad")), convey.ShouldBeNil)
			pool.Start(context.Background())
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(p.callsFor("bad"), convey.ShouldEqual, 1)
		})
	})
}

// blockingPersister blocks until released.
type blockingPersister struct{ release chan struct{} }

func (b blockingPersister) Persist(ctx context.Context, _ model.HistoryEvent) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestShutdownTimeout(t *testing.T) {
	convey.Convey("Given a worker stuck on a slow persist", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		bp := blockingPersister{release: make(chan struct{})}
		pool := worker.NewPool(1, q, bp, worker.WithRetry(1, time.Millisecond))
		convey.So(q.Enqueue(context.Background(), event("slow")), convey.ShouldBeNil)
		pool.Start(context.Background())

		convey.Convey("When shutdown's deadline expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(ctx)

			convey.Convey("Then a timeout error is returned", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}
