package notification_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/m7moud/notification-queue/internal/notification"
	"github.com/m7moud/notification-queue/internal/queue"
)

var _ = Describe("Service", func() {
	var (
		registry *queue.Manager[json.RawMessage]
		service  *notification.Service
		ctx      context.Context
		now      time.Time
	)

	BeforeEach(func() {
		now = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
		registry = queue.NewManager[json.RawMessage]()
		service = notification.NewService(registry, notification.WithClock(func() time.Time { return now }))
		ctx = context.Background()
	})

	Describe("SendNotification", func() {
		It("should lazily create the notification queue", func() {
			Expect(registry.Exists(notification.DefaultQueueName)).To(BeFalse())

			err := service.SendNotification(ctx, "Student", "42", "Student", notification.OperationUpdate, "admin")
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Exists(notification.DefaultQueueName)).To(BeTrue())
			Expect(service.Pending()).To(Equal(1))
		})

		It("should serialize the notification as the message body", func() {
			err := service.SendNotification(ctx, "Course", "1045", "Course", notification.OperationDelete, "admin")
			Expect(err).NotTo(HaveOccurred())

			msg, ok, err := registry.Receive(notification.DefaultQueueName)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(msg.Label).To(Equal("Course deleted"))
			Expect(msg.Body).To(MatchJSON(`{
				"id": 1,
				"category": "Course",
				"entity_id": "1045",
				"entity_name": "Course",
				"operation": "DELETE",
				"actor_user": "admin",
				"timestamp": "2025-03-14T09:26:53Z",
				"is_read": false
			}`))
		})

		It("should default the actor when none is given", func() {
			Expect(service.SendNotification(ctx, "Student", "7", "Student", notification.OperationCreate, "")).To(Succeed())

			n, err := service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n.ActorUser).To(Equal(notification.DefaultActor))
		})

		It("should reject an unknown operation", func() {
			err := service.SendNotification(ctx, "Student", "7", "Student", notification.Operation("ARCHIVE"), "admin")
			Expect(err).To(MatchError(notification.ErrInvalidOperation))
			Expect(service.Pending()).To(BeZero())
		})

		It("should use the configured queue name", func() {
			service = notification.NewService(registry, notification.WithQueueName("AdminFeed"))
			Expect(service.SendNotification(ctx, "Test", "1", "Test", notification.OperationCreate, "")).To(Succeed())

			Expect(registry.GetAllQueueNames()).To(Equal([]string{"AdminFeed"}))
		})

		It("should assign unique ids under concurrent sends", func() {
			var wg sync.WaitGroup
			for range 10 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for range 50 {
						Expect(service.SendNotification(ctx, "Load", uuid.NewString(), "Load", notification.OperationCreate, "")).To(Succeed())
					}
				}()
			}
			wg.Wait()

			seen := make(map[int64]bool)
			for {
				n, err := service.ReceiveNotification(ctx)
				Expect(err).NotTo(HaveOccurred())
				if n == nil {
					break
				}
				Expect(seen).NotTo(HaveKey(n.ID))
				seen[n.ID] = true
			}
			Expect(seen).To(HaveLen(500))
		})
	})

	Describe("ReceiveNotification", func() {
		It("should round-trip the notification fields", func() {
			entityID := uuid.NewString()
			err := service.SendNotification(ctx, "Test", entityID, "Test Entity", notification.OperationCreate, "TestUser")
			Expect(err).NotTo(HaveOccurred())

			n, err := service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).NotTo(BeNil())
			Expect(n.Category).To(Equal("Test"))
			Expect(n.EntityID).To(Equal(entityID))
			Expect(n.EntityName).To(Equal("Test Entity"))
			Expect(n.Operation).To(Equal(notification.OperationCreate))
			Expect(n.ActorUser).To(Equal("TestUser"))
			Expect(n.Timestamp).To(BeTemporally("==", now))
			Expect(n.IsRead).To(BeFalse())
		})

		It("should consume the notification", func() {
			Expect(service.SendNotification(ctx, "Test", "1", "Test", notification.OperationCreate, "")).To(Succeed())

			first, err := service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(BeNil())

			second, err := service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeNil())
			Expect(service.Pending()).To(BeZero())
		})

		It("should deliver notifications in send order", func() {
			for _, op := range []notification.Operation{
				notification.OperationCreate,
				notification.OperationUpdate,
				notification.OperationDelete,
			} {
				Expect(service.SendNotification(ctx, "Enrollment", "9", "Enrollment", op, "")).To(Succeed())
			}

			var ops []notification.Operation
			for range 3 {
				n, err := service.ReceiveNotification(ctx)
				Expect(err).NotTo(HaveOccurred())
				ops = append(ops, n.Operation)
			}
			Expect(ops).To(Equal([]notification.Operation{
				notification.OperationCreate,
				notification.OperationUpdate,
				notification.OperationDelete,
			}))
		})

		It("should return nil before any notification was sent", func() {
			n, err := service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNil())
		})

		It("should report an undecodable body as a serialization failure", func() {
			_, err := registry.Create(notification.DefaultQueueName)
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Send(notification.DefaultQueueName, json.RawMessage(`{"operation":"EXPLODE"}`), "bad")
			Expect(err).NotTo(HaveOccurred())

			n, err := service.ReceiveNotification(ctx)
			Expect(n).To(BeNil())
			Expect(err).To(MatchError(notification.ErrSerialization))

			var serr *notification.SerializationError
			Expect(err).To(BeAssignableToTypeOf(serr))
			Expect(service.Pending()).To(BeZero())
		})
	})

	Describe("ReceiveNotifications", func() {
		It("should stop immediately on an empty queue", func() {
			notifications, err := service.ReceiveNotifications(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifications).To(BeEmpty())
		})

		It("should cap a poll at the limit", func() {
			for range 15 {
				Expect(service.SendNotification(ctx, "Test", "1", "Test", notification.OperationCreate, "")).To(Succeed())
			}

			notifications, err := service.ReceiveNotifications(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifications).To(HaveLen(notification.DefaultPollLimit))
			Expect(service.Pending()).To(Equal(5))

			notifications, err = service.ReceiveNotifications(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifications).To(HaveLen(5))
		})

		It("should honour a cancelled context", func() {
			Expect(service.SendNotification(ctx, "Test", "1", "Test", notification.OperationCreate, "")).To(Succeed())

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			notifications, err := service.ReceiveNotifications(cancelled, 10)
			Expect(err).To(MatchError(context.Canceled))
			Expect(notifications).To(BeEmpty())
			Expect(service.Pending()).To(Equal(1))
		})
	})

	Describe("MarkAsRead", func() {
		var received *notification.Notification

		BeforeEach(func() {
			Expect(service.SendNotification(ctx, "Test", "1", "Test Entity", notification.OperationCreate, "TestUser")).To(Succeed())

			var err error
			received, err = service.ReceiveNotification(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(received).NotTo(BeNil())
		})

		It("should flag a received notification as read", func() {
			Expect(service.MarkAsRead(ctx, received.ID)).To(Succeed())

			n, err := service.Get(ctx, received.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n.IsRead).To(BeTrue())
			Expect(n.ReadAt).NotTo(BeNil())
			Expect(*n.ReadAt).To(BeTemporally("==", now))

			unread, err := service.CountUnread(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(unread).To(BeZero())
		})

		It("should keep the first read time when marked twice", func() {
			Expect(service.MarkAsRead(ctx, received.ID)).To(Succeed())
			first := now

			now = now.Add(time.Hour)
			Expect(service.MarkAsRead(ctx, received.ID)).To(Succeed())

			n, err := service.Get(ctx, received.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*n.ReadAt).To(BeTemporally("==", first))
		})

		It("should return ErrUnknownNotificationID for an unknown id", func() {
			Expect(service.MarkAsRead(ctx, 999)).To(MatchError(notification.ErrUnknownNotificationID))
		})

		It("should not reach notifications still waiting on the queue", func() {
			Expect(service.SendNotification(ctx, "Test", "2", "Test Entity", notification.OperationUpdate, "")).To(Succeed())
			Expect(service.MarkAsRead(ctx, received.ID+1)).To(MatchError(notification.ErrUnknownNotificationID))
		})
	})

	Describe("ListReceived", func() {
		It("should list received notifications newest first", func() {
			for _, category := range []string{"Student", "Course", "Student"} {
				Expect(service.SendNotification(ctx, category, "1", category, notification.OperationCreate, "")).To(Succeed())
			}
			_, err := service.ReceiveNotifications(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(service.MarkAsRead(ctx, 3)).To(Succeed())

			all, err := service.ListReceived(ctx, notification.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].ID).To(Equal(int64(3)))

			unread, err := service.ListReceived(ctx, notification.ListOptions{OnlyUnread: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(unread).To(HaveLen(2))

			students, err := service.ListReceived(ctx, notification.ListOptions{Category: "Student", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(students).To(HaveLen(1))
			Expect(students[0].ID).To(Equal(int64(3)))
		})
	})
})
