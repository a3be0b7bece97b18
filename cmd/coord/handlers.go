package main

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/coord/pkg/handler"
	"github.com/inkpress/coord/pkg/notifications"
	"github.com/inkpress/coord/pkg/queue"
	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/redis"
	"github.com/inkpress/coord/pkg/session"
	"github.com/inkpress/coord/pkg/validator"
	"github.com/inkpress/coord/pkg/viewcount"
)

const maxMarkReadIDs = 100

var errInvalidNotification = handler.NewHTTPError(http.StatusBadRequest, "notification.invalid")

func (a *app) errorMappers() handler.ErrorHandler[handler.Context] {
	return handler.NewErrorHandler(a.log,
		handler.Map(ratelimit.ErrRateLimitExceeded, handler.ErrTooManyRequests),
		handler.Map(notifications.ErrNotificationNotFound, handler.ErrNotFound),
		handler.Map(notifications.ErrUserIDRequired, errInvalidNotification),
		handler.Map(notifications.ErrTitleRequired, errInvalidNotification),
		handler.Map(notifications.ErrInvalidType, errInvalidNotification),
		handler.Map(notifications.ErrContentMismatch, errInvalidNotification),
		handler.Map(notifications.ErrInvalidContent, errInvalidNotification),
		handler.Map(viewcount.ErrEntityIDRequired, handler.ErrBadRequest),
		handler.Map(viewcount.ErrEntityNotFound, handler.ErrNotFound),
		handler.Map(session.ErrSessionNotFound, handler.ErrNotFound),
		handler.Map(session.ErrUserIDEmpty, handler.ErrBadRequest),
		handler.Map(queue.ErrTaskNotFound, handler.ErrNotFound),
		handler.Map(redis.ErrUnavailable, handler.ErrServiceUnavailable),
	)
}

func currentUser(ctx handler.Context) (string, bool) {
	return session.UserIDFromContext(ctx)
}

type listNotificationsRequest struct {
	Page  int                `query:"page"`
	Limit int                `query:"limit"`
	Type  notifications.Type `query:"type"`
	Read  *bool              `query:"read"`
}

func (a *app) listNotifications(ctx handler.Context, req listNotificationsRequest) handler.Response {
	userID, ok := currentUser(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	if req.Type != "" && !req.Type.Valid() {
		ve := handler.ValidationError{}
		ve.Add("type", "unknown notification type")
		return handler.Error(ve)
	}

	page, err := a.pipeline.List(ctx, userID, notifications.ListOptions{
		Page:  req.Page,
		Limit: req.Limit,
		Type:  req.Type,
		Read:  req.Read,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(page)
}

func (a *app) unreadCount(ctx handler.Context, _ struct{}) handler.Response {
	userID, ok := currentUser(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	n, err := a.pipeline.UnreadCount(ctx, userID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]int{"count": n})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (a *app) markRead(ctx handler.Context, req markReadRequest) handler.Response {
	userID, ok := currentUser(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	rules := []validator.Rule{validator.MaxItems("ids", req.IDs, maxMarkReadIDs)}
	if i := slices.IndexFunc(req.IDs, func(id string) bool { return uuid.Validate(id) != nil }); i >= 0 {
		rules = append(rules, validator.UUID("ids", req.IDs[i]))
	}
	if err := validator.Apply(rules...); err != nil {
		return notificationError(err)
	}

	n, err := a.pipeline.MarkRead(ctx, userID, req.IDs)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]int{"updated": n})
}

type idRequest struct {
	ID string `path:"id"`
}

func (a *app) deleteNotification(ctx handler.Context, req idRequest) handler.Response {
	userID, ok := currentUser(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	if err := a.pipeline.Delete(ctx, userID, req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func (a *app) recordView(ctx handler.Context, req idRequest) handler.Response {
	if err := a.views.Increment(ctx, req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.EmptyWithStatus(http.StatusAccepted)
}

type sessionView struct {
	ID             string    `json:"id"`
	UserAgent      string    `json:"userAgent,omitempty"`
	IP             string    `json:"ip,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Current        bool      `json:"current"`
}

func (a *app) listSessions(ctx handler.Context, _ struct{}) handler.Response {
	current, ok := session.FromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	list, err := a.sessions.List(ctx, current.UserID)
	if err != nil {
		return handler.Error(err)
	}

	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			ID:             s.ID,
			UserAgent:      s.UserAgent,
			IP:             s.IP,
			CreatedAt:      s.CreatedAt,
			ExpiresAt:      s.ExpiresAt,
			LastActivityAt: s.LastActivityAt,
			Current:        s.ID == current.ID,
		})
	}
	return handler.JSON(out)
}

func (a *app) revokeSession(ctx handler.Context, req idRequest) handler.Response {
	current, ok := session.FromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	list, err := a.sessions.List(ctx, current.UserID)
	if err != nil {
		return handler.Error(err)
	}
	// Only the user's own sessions can be revoked.
	if !slices.ContainsFunc(list, func(s *session.Session) bool { return s.ID == req.ID }) {
		return handler.Error(session.ErrSessionNotFound)
	}
	if err := a.sessions.Revoke(ctx, req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func (a *app) revokeOtherSessions(ctx handler.Context, _ struct{}) handler.Response {
	current, ok := session.FromContext(ctx)
	if !ok {
		return handler.Error(handler.ErrUnauthorized)
	}
	n, err := a.sessions.RevokeAll(ctx, current.UserID, current.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]int{"revoked": n})
}

func (a *app) logout(ctx handler.Context, _ struct{}) handler.Response {
	if err := a.sessions.Logout(ctx, ctx.ResponseWriter(), ctx.Request()); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

type devLoginRequest struct {
	UserID string `json:"userId"`
}

// devLoginHandler signs in any user id. It is mounted in development only.
func (a *app) devLoginHandler(ctx handler.Context, req devLoginRequest) handler.Response {
	s, err := a.sessions.Login(ctx, ctx.ResponseWriter(), ctx.Request(), req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]any{
		"sessionId": s.ID,
		"token":     s.Token,
		"expiresAt": s.ExpiresAt,
	}, handler.WithJSONStatus(http.StatusCreated), handler.WithJSONHeader("Cache-Control", "no-store"))
}

func (a *app) runViewSync(ctx handler.Context, _ struct{}) handler.Response {
	res, err := a.syncer.Run(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

type createNotificationsRequest struct {
	Notifications []notifications.Params `json:"notifications"`
	// Delay postpones creation, e.g. "30s". Only single notifications can
	// be delayed.
	Delay string `json:"delay,omitempty"`
}

func (a *app) createNotifications(ctx handler.Context, req createNotificationsRequest) handler.Response {
	ve := handler.ValidationError{}
	if len(req.Notifications) == 0 {
		ve.Add("notifications", "at least one notification is required")
	}
	var delay time.Duration
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		switch {
		case err != nil || d < 0:
			ve.Add("delay", "must be a non-negative duration")
		case len(req.Notifications) != 1:
			ve.Add("delay", "only a single notification can be delayed")
		}
		delay = d
	}
	if !ve.IsEmpty() {
		return handler.Error(ve)
	}

	if delay > 0 {
		if err := a.delayed.Enqueue(ctx, req.Notifications[0], delay); err != nil {
			return notificationError(err)
		}
		return handler.EmptyWithStatus(http.StatusAccepted)
	}

	if len(req.Notifications) == 1 {
		n, err := a.pipeline.Create(ctx, req.Notifications[0])
		if err != nil {
			return notificationError(err)
		}
		return handler.JSON([]notifications.Notification{n}, handler.WithJSONStatus(http.StatusCreated))
	}

	created, err := a.pipeline.CreateBatch(ctx, req.Notifications)
	if err != nil {
		return notificationError(err)
	}
	return handler.JSON(created, handler.WithJSONStatus(http.StatusCreated))
}

// notificationError renders field failures of notification params as a 422
// with per-field details. Other errors go through the error mappers.
func notificationError(err error) handler.Response {
	ve := validator.ExtractValidationErrors(err)
	if ve == nil {
		return handler.Error(err)
	}
	out := handler.ValidationError{}
	for _, e := range ve {
		out.Add(e.Field, e.Message)
	}
	return handler.Error(out)
}

func (a *app) recountUnread(ctx handler.Context, req idRequest) handler.Response {
	n, err := a.pipeline.Recount(ctx, req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]int{"count": n})
}

type deadLettersRequest struct {
	Limit int `query:"limit"`
}

func (a *app) listDeadLetters(ctx handler.Context, req deadLettersRequest) handler.Response {
	list, err := a.tasks.DeadLetters(ctx, req.Limit)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(list)
}

func (a *app) requeueDeadLetter(ctx handler.Context, req idRequest) handler.Response {
	id, err := queue.ParseTaskID(req.ID)
	if err != nil {
		return handler.Error(handler.ErrBadRequest)
	}
	task, err := a.tasks.Requeue(ctx, id)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(task, handler.WithJSONStatus(http.StatusCreated))
}

type suspiciousRequest struct {
	IP   string `query:"ip"`
	Path string `query:"path"`
}

func (a *app) suspiciousActivity(ctx handler.Context, req suspiciousRequest) handler.Response {
	if req.IP == "" || req.Path == "" {
		ve := handler.ValidationError{}
		ve.Add("ip", "ip and path are required")
		return handler.Error(ve)
	}
	rec, found, err := a.limiter.Suspicious(ctx, req.IP, req.Path)
	if err != nil {
		return handler.Error(err)
	}
	if !found {
		return handler.Error(handler.ErrNotFound)
	}
	return handler.JSON(rec)
}
