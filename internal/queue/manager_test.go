package queue_test

import (
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/m7moud/notification-queue/internal/queue"
)

var _ = Describe("Manager", func() {
	var registry *queue.Manager[json.RawMessage]

	BeforeEach(func() {
		registry = queue.NewManager[json.RawMessage]()
	})

	Describe("Create", func() {
		It("should register a new empty queue", func() {
			q, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Name()).To(Equal("Q1"))
			Expect(q.Count()).To(BeZero())
			Expect(registry.Exists("Q1")).To(BeTrue())
		})

		It("should return the existing queue for a duplicate name", func() {
			first, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			_, err = first.Send(json.RawMessage(`1`), "")
			Expect(err).NotTo(HaveOccurred())

			second, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
			Expect(second.Count()).To(Equal(1))
		})

		DescribeTable("should reject invalid names",
			func(name string) {
				_, err := registry.Create(name)
				Expect(err).To(MatchError(queue.ErrInvalidQueueName))
			},
			Entry("empty", ""),
			Entry("blank", "   "),
			Entry("with a space", "my queue"),
			Entry("with a newline", "q\n"),
		)
	})

	Describe("Delete", func() {
		It("should make the name unknown to every operation", func() {
			_, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.Delete("Q1")).To(Succeed())

			_, err = registry.GetQueue("Q1")
			Expect(err).To(MatchError(queue.ErrQueueNotFound))

			_, err = registry.Send("Q1", json.RawMessage(`"x"`), "")
			Expect(err).To(MatchError(queue.ErrQueueNotFound))

			_, _, err = registry.Receive("Q1")
			Expect(err).To(MatchError(queue.ErrQueueNotFound))

			Expect(registry.Delete("Q1")).To(MatchError(queue.ErrQueueNotFound))
		})

		It("should allow the name to be created again as a fresh queue", func() {
			_, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Send("Q1", json.RawMessage(`"stale"`), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.Delete("Q1")).To(Succeed())

			q, err := registry.Create("Q1")
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Count()).To(BeZero())
		})

		It("should fail for an unknown name", func() {
			Expect(registry.Delete("missing")).To(MatchError(queue.ErrQueueNotFound))
		})
	})

	Describe("GetAllQueueNames", func() {
		It("should return a sorted snapshot", func() {
			for _, name := range []string{"b", "c", "a"} {
				_, err := registry.Create(name)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(registry.GetAllQueueNames()).To(Equal([]string{"a", "b", "c"}))
		})

		It("should be empty for a new registry", func() {
			Expect(registry.GetAllQueueNames()).To(BeEmpty())
		})
	})

	Describe("Stats", func() {
		It("should report depth per queue", func() {
			_, _ = registry.Create("a")
			_, _ = registry.Create("b")
			_, _ = registry.Send("b", json.RawMessage(`1`), "")
			_, _ = registry.Send("b", json.RawMessage(`2`), "")

			Expect(registry.Stats()).To(Equal([]queue.QueueStats{
				{Name: "a", Count: 0},
				{Name: "b", Count: 2, Sent: 2},
			}))
		})
	})

	It("should run the basic queue scenario", func() {
		_, err := registry.Create("Q1")
		Expect(err).NotTo(HaveOccurred())

		_, err = registry.Send("Q1", json.RawMessage(`"Hello World!"`), "Test Message 1")
		Expect(err).NotTo(HaveOccurred())
		_, err = registry.Send("Q1", json.RawMessage(`{"TestData":"JSON Object"}`), "Test Message 2")
		Expect(err).NotTo(HaveOccurred())

		first, ok, err := registry.Receive("Q1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(first.Body).To(MatchJSON(`"Hello World!"`))
		Expect(first.Label).To(Equal("Test Message 1"))

		second, ok, err := registry.Receive("Q1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(second.Body).To(MatchJSON(`{"TestData":"JSON Object"}`))

		Expect(registry.Delete("Q1")).To(Succeed())
		Expect(registry.GetAllQueueNames()).NotTo(ContainElement("Q1"))
	})

	It("should stamp messages with the injected clock", func() {
		fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		registry = queue.NewManager[json.RawMessage](queue.WithClock(func() time.Time { return fixed }))
		_, _ = registry.Create("Q1")

		msg, err := registry.Send("Q1", json.RawMessage(`1`), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Timestamp).To(Equal(fixed))
	})

	It("should survive concurrent create, delete and send", func() {
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for range 200 {
					q, err := registry.Create("shared")
					Expect(err).NotTo(HaveOccurred())
					_, _ = q.Send(json.RawMessage(`1`), "")
					_ = registry.Delete("shared")
					_ = registry.GetAllQueueNames()
				}
			}()
		}
		wg.Wait()
	})
})
