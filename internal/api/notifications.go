package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/m7moud/notification-queue/internal/notification"
)

// UserHeader carries the name of the user behind a request. Authentication is
// handled in front of this service.
const UserHeader = "X-User"

type notificationsResponse struct {
	Success       bool                        `json:"success"`
	Message       string                      `json:"message,omitempty"`
	Notifications []notification.Notification `json:"notifications"`
	Count         int                         `json:"count"`
	Unread        *int                        `json:"unread,omitempty"`
}

type publishRequest struct {
	Category   string `json:"category"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Operation  string `json:"operation"`
	ActorUser  string `json:"actor_user"`
}

// getNotifications drains pending notifications, at most one poll limit per
// request. Notifications drained before a failure are still returned, since
// they are already gone from the queue.
func (h *Handler) getNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notifications.ReceiveNotifications(r.Context(), 0)
	if err != nil && len(notifications) == 0 {
		h.logger.WithError(err).Error("error retrieving notifications")
		writeFailure(w, http.StatusInternalServerError, "Error retrieving notifications")
		return
	}

	resp := notificationsResponse{
		Success:       true,
		Notifications: notifications,
		Count:         len(notifications),
	}
	if err != nil {
		h.logger.WithError(err).WithField("count", len(notifications)).Warn("poll stopped early")
		resp.Message = "Some notifications could not be read"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listReceived(w http.ResponseWriter, r *http.Request) {
	opts := notification.ListOptions{
		OnlyUnread: r.URL.Query().Get("unread") == "true",
		Category:   r.URL.Query().Get("category"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeFailure(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}

	notifications, err := h.notifications.ListReceived(r.Context(), opts)
	if err != nil {
		h.logger.WithError(err).Error("error listing notifications")
		writeFailure(w, http.StatusInternalServerError, "Error retrieving notifications")
		return
	}
	unread, err := h.notifications.CountUnread(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("error counting unread notifications")
		writeFailure(w, http.StatusInternalServerError, "Error retrieving notifications")
		return
	}

	writeJSON(w, http.StatusOK, notificationsResponse{
		Success:       true,
		Notifications: notifications,
		Count:         len(notifications),
		Unread:        &unread,
	})
}

func (h *Handler) publishNotification(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := notification.ParseOperation(req.Operation)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "operation must be CREATE, UPDATE or DELETE")
		return
	}
	if req.EntityName == "" {
		writeFailure(w, http.StatusBadRequest, "entity_name is required")
		return
	}
	if req.Category == "" {
		req.Category = req.EntityName
	}
	actor := req.ActorUser
	if actor == "" {
		actor = r.Header.Get(UserHeader)
	}

	if err := h.notifications.SendNotification(r.Context(), req.Category, req.EntityID, req.EntityName, op, actor); err != nil {
		h.logger.WithError(err).Error("error sending notification")
		writeFailure(w, http.StatusInternalServerError, "Error sending notification")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (h *Handler) sendTestNotification(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(UserHeader)
	if actor == "" {
		actor = "TestUser"
	}

	err := h.notifications.SendNotification(r.Context(), "Test", uuid.NewString(), "Test Entity", notification.OperationCreate, actor)
	if err != nil {
		h.logger.WithError(err).Error("error sending test notification")
		writeFailure(w, http.StatusInternalServerError, "Error sending notification: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Test notification sent successfully!",
	})
}

func (h *Handler) markAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	err = h.notifications.MarkAsRead(r.Context(), id)
	switch {
	case errors.Is(err, notification.ErrUnknownNotificationID):
		writeFailure(w, http.StatusNotFound, "notification not found")
	case err != nil:
		h.logger.WithError(err).WithField("id", id).Error("error marking notification as read")
		writeFailure(w, http.StatusInternalServerError, "Error updating notification")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
