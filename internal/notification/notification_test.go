package notification_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/m7moud/notification-queue/internal/notification"
)

var _ = Describe("Operation", func() {
	DescribeTable("ParseOperation",
		func(input string, want notification.Operation) {
			op, err := notification.ParseOperation(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(op).To(Equal(want))
		},
		Entry("upper case", "CREATE", notification.OperationCreate),
		Entry("lower case", "update", notification.OperationUpdate),
		Entry("padded", " Delete ", notification.OperationDelete),
	)

	It("should reject anything outside the closed set", func() {
		_, err := notification.ParseOperation("MERGE")
		Expect(err).To(MatchError(notification.ErrInvalidOperation))
	})

	It("should reject unknown operations when decoding", func() {
		var n notification.Notification
		err := json.Unmarshal([]byte(`{"operation":"MERGE"}`), &n)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Notification", func() {
	It("should build a title from entity and operation", func() {
		n := notification.Notification{EntityName: "Student", Operation: notification.OperationUpdate}
		Expect(n.Title()).To(Equal("Student updated"))
	})

	It("should only transition from unread to read", func() {
		n := notification.Notification{}
		first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		n.MarkAsRead(first)
		n.MarkAsRead(first.Add(time.Minute))

		Expect(n.IsRead).To(BeTrue())
		Expect(*n.ReadAt).To(Equal(first))
	})

	It("should survive a JSON round trip", func() {
		read := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		in := notification.Notification{
			ID:         7,
			Category:   "Department",
			EntityID:   "3",
			EntityName: "Department",
			Operation:  notification.OperationDelete,
			ActorUser:  "admin",
			Timestamp:  read.Add(-time.Hour),
			IsRead:     true,
			ReadAt:     &read,
		}

		data, err := json.Marshal(in)
		Expect(err).NotTo(HaveOccurred())

		var out notification.Notification
		Expect(json.Unmarshal(data, &out)).To(Succeed())
		Expect(out).To(Equal(in))
	})
})
