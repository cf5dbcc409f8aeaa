package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"istream/internal/httputil"
	"istream/internal/model"
	"istream/internal/service"
	"istream/internal/transport/http/middleware"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// Subscribe creates an edge from the authenticated user to a channel.
// POST /subscriptions/{channelID}
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	subscriberID, channelID, ok := h.edgeIDs(w, r)
	if !ok {
		return
	}

	sub, err := h.subscriptionService.Subscribe(r.Context(), subscriberID, channelID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCannotSubscribeSelf):
			httputil.WriteInvalidOperation(w, "You cannot subscribe to your own channel")
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "Channel not found")
		case errors.Is(err, model.ErrAlreadySubscribed):
			httputil.WriteConflict(w, "Already subscribed to this channel")
		default:
			httputil.WriteInternalError(w, "Failed to subscribe")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, sub)
}

// Unsubscribe removes the edge.
// DELETE /subscriptions/{channelID}
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	subscriberID, channelID, ok := h.edgeIDs(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.Unsubscribe(r.Context(), subscriberID, channelID); err != nil {
		if errors.Is(err, model.ErrNotSubscribed) {
			httputil.WriteNotFound(w, "Not subscribed to this channel")
			return
		}
		httputil.WriteInternalError(w, "Failed to unsubscribe")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Unsubscribed"})
}

// Status reports whether the authenticated user is subscribed to a channel.
// GET /subscriptions/{channelID}/status
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	subscriberID, channelID, ok := h.edgeIDs(w, r)
	if !ok {
		return
	}

	subscribed, err := h.subscriptionService.IsSubscribed(r.Context(), subscriberID, channelID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to check subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"subscribed": subscribed})
}

// List returns the authenticated user's subscriptions, newest first.
// GET /subscriptions
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriberID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "limit", 12)

	result, err := h.subscriptionService.ListSubscriptions(r.Context(), subscriberID, page, pageSize)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list subscriptions")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// SubscriberCount is public; any caller can read a channel's subscriber total.
// GET /channels/{channelID}/subscribers/count
func (h *SubscriptionHandler) SubscriberCount(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid channel ID")
		return
	}

	count, err := h.subscriptionService.SubscriberCount(r.Context(), channelID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to count subscribers")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{"subscribers": count})
}

func (h *SubscriptionHandler) edgeIDs(w http.ResponseWriter, r *http.Request) (subscriberID, channelID int64, ok bool) {
	subscriberID, authed := middleware.GetUserIDFromContext(r.Context())
	if !authed {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return 0, 0, false
	}

	channelID, err := strconv.ParseInt(chi.URLParam(r, "channelID"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid channel ID")
		return 0, 0, false
	}
	return subscriberID, channelID, true
}
