package kafka_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/eventstream/kafka"
	"github.com/papercomputeco/strata/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *kafka.Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(w, nil)
	})

	It("validates config", func() {
		_, err := kafka.NewPublisher(kafka.Config{Topic: "t"})
		Expect(err).To(HaveOccurred())
		_, err = kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(HaveOccurred())
	})

	It("builds an asynchronous writer that logs delivery failures", func() {
		var buf bytes.Buffer
		w := kafka.NewWriter(kafka.Config{
			Brokers: []string{"localhost:9092"},
			Topic:   "strata.events",
			Logger:  logger.New(logger.WithJSON(true), logger.WithWriter(&buf)),
		})
		Expect(w.Async).To(BeTrue())
		Expect(w.BatchTimeout).To(Equal(kafka.DefaultBatchTimeout))
		Expect(w.Completion).NotTo(BeNil())

		w.Completion([]kafkago.Message{{}, {}}, errors.New("broker unreachable"))
		Expect(buf.String()).To(ContainSubstring("delivering events failed"))
		Expect(buf.String()).To(ContainSubstring("broker unreachable"))

		sync := kafka.NewWriter(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "t", Sync: true, BatchTimeout: time.Second})
		Expect(sync.Async).To(BeFalse())
		Expect(sync.BatchTimeout).To(Equal(time.Second))
	})

	It("writes JSON keyed by event type", func() {
		event := eventstream.NewEvent(eventstream.EventTypeMaintenanceStarted, eventstream.DefaultSource(),
			eventstream.MaintenanceStartedPayload{CycleID: "c1", TriggeredBy: "schedule"})

		Expect(p.Publish(context.Background(), event)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))
		Expect(string(w.msgs[0].Key)).To(Equal(eventstream.EventTypeMaintenanceStarted))

		var decoded map[string]any
		Expect(json.Unmarshal(w.msgs[0].Value, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("event_id", event.EventID))
		Expect(decoded["payload"]).To(HaveKeyWithValue("cycle_id", "c1"))
	})

	It("wraps writer errors", func() {
		w.err = errors.New("broker down")
		err := p.Publish(context.Background(), &eventstream.Event{EventID: "e"})
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("rejects nil events and closes the writer", func() {
		Expect(p.Publish(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
