package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/restwell/internal/adapters/mq/queue"
	"github.com/okian/restwell/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func reading(id string) model.HistoryEvent {
	return model.HistoryEvent{
		ID:      id,
		Kind:    model.KindReading,
		Reading: model.ParameterReading{ID: id, UserID: "u1", RecordedAt: time.Now()},
	}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Capacity(), ShouldEqual, 2)
		So(q.Len(), ShouldEqual, 0)

		Convey("When two events are enqueued", func() {
			So(q.Enqueue(ctx, reading("1")), ShouldBeNil)
			So(q.Enqueue(ctx, reading("2")), ShouldBeNil)

			Convey("Then a third is rejected as full", func() {
				So(errors.Is(q.Enqueue(ctx, reading("3")), queue.ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then they are dequeued in order", func() {
				cctx, cancel := context.WithCancel(ctx)
				defer cancel()
				ch := q.Dequeue(cctx)
				So((<-ch).ID, ShouldEqual, "1")
				So((<-ch).ID, ShouldEqual, "2")
			})
		})

		Convey("When the queue is closed with pending events", func() {
			So(q.Enqueue(ctx, reading("1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new events are rejected", func() {
				So(errors.Is(q.Enqueue(ctx, reading("2")), queue.ErrClosed), ShouldBeTrue)
			})

			Convey("Then pending events drain and the channel closes", func() {
				var got []string
				for ev := range q.Dequeue(ctx) {
					got = append(got, ev.ID)
				}
				So(got, ShouldResemble, []string{"1"})
			})

			Convey("Then closing again is harmless", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("When the consumer context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(cctx)
			cancel()

			Convey("Then the dequeue channel closes", func() {
				select {
				case _, ok := <-ch:
					So(ok, ShouldBeFalse)
				case <-time.After(time.Second):
					So("dequeue channel still open", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestDefaultCapacity(t *testing.T) {
	Convey("Given a queue with default options", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(-1))

		Convey("Then it accepts many events", func() {
			for i := 0; i < 100; i++ {
				So(q.Enqueue(context.Background(), reading(fmt.Sprint(i))), ShouldBeNil)
			}
			So(q.Len(), ShouldEqual, 100)
			So(q.Capacity(), ShouldBeGreaterThan, 100)
		})
	})
}
