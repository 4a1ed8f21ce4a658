// Package httpx exposes the marketplace REST API.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth          AuthServiceInterface
	Users         *service.UserService
	Jobs          *service.JobService
	Applications  *service.ApplicationService
	Notifications *service.NotificationService
	Messages      *service.MessageService

	CookieDomain    string
	FrontendURL     string
	DevLoginEnabled bool

	// TrustedProxies are peers allowed to report the client address in
	// X-Forwarded-For.
	TrustedProxies []netip.Prefix

	// Compression enables gzip for JSON responses when set.
	Compression *CompressionConfig
	// Readiness lists dependencies probed by GET /readyz.
	Readiness map[string]HealthChecker
	Logger    *slog.Logger // optional
}

type middleware func(http.Handler) http.Handler

func chain(h http.HandlerFunc, mws ...middleware) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errs := errorResponder{logger: logger}
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Readiness))

	authed := RequireAuth(services.Auth, logger)
	optional := OptionalAuth(services.Auth)
	routes := routeSet{mux: mux, authed: authed, optional: optional}

	registerAuthRoutes(mux, &AuthHandlers{
		Svc:             services.Auth,
		CookieDomain:    services.CookieDomain,
		FrontendURL:     services.FrontendURL,
		DevLoginEnabled: services.DevLoginEnabled,
		errs:            errs,
	})
	routes.users(&UserHandlers{Svc: services.Users, errs: errs})
	routes.jobs(&JobHandlers{Svc: services.Jobs, proxies: trustedProxies(services.TrustedProxies), errs: errs})
	routes.applications(&ApplicationHandlers{Svc: services.Applications, errs: errs})
	routes.notifications(&NotificationHandlers{Svc: services.Notifications, errs: errs})
	routes.messages(&MessageHandlers{Svc: services.Messages, errs: errs})

	var handler http.Handler = &notFoundHandler{mux: mux}
	if services.Compression != nil {
		handler = Compression(*services.Compression)(handler)
	}
	return Recover(logger)(Logging(logger)(handler))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/dev-login", h.DevLogin)
}

type routeSet struct {
	mux      *http.ServeMux
	authed   middleware
	optional middleware
}

func (s routeSet) public(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, chain(h, s.optional))
}

func (s routeSet) auth(pattern string, h http.HandlerFunc, roles ...domainauth.Role) {
	if len(roles) == 0 {
		s.mux.Handle(pattern, chain(h, s.authed))
		return
	}
	s.mux.Handle(pattern, chain(h, s.authed, RequireRole(roles...)))
}

func (s routeSet) users(h *UserHandlers) {
	s.auth("GET /api/users/me", h.Me)
	s.auth("PUT /api/users/me", h.UpdateMe)
	s.auth("PUT /api/users/{id}/block", h.SetBlocked, domainauth.RoleAdmin)
}

func (s routeSet) jobs(h *JobHandlers) {
	s.public("GET /api/jobs", h.Search)
	s.public("GET /api/jobs/{id}", h.Get)
	s.auth("GET /api/jobs/mine", h.ListMine, domainauth.RoleEmployer)
	s.auth("GET /api/jobs/saved", h.ListSaved, domainauth.RoleWorker)
	s.auth("POST /api/jobs", h.Create, domainauth.RoleEmployer)
	s.auth("PUT /api/jobs/{id}", h.Update, domainauth.RoleEmployer)
	s.auth("POST /api/jobs/{id}/save", h.Save, domainauth.RoleWorker)
	s.auth("DELETE /api/jobs/{id}/save", h.Unsave, domainauth.RoleWorker)
}

func (s routeSet) applications(h *ApplicationHandlers) {
	s.auth("POST /api/applications", h.Submit, domainauth.RoleWorker)
	s.auth("GET /api/applications", h.List)
	s.auth("GET /api/applications/stats", h.Stats)
	s.auth("GET /api/applications/{id}", h.Get)
	s.auth("PUT /api/applications/{id}/status", h.UpdateStatus, domainauth.RoleEmployer)
	s.auth("POST /api/applications/{id}/messages", h.AddMessage)
	s.auth("PUT /api/applications/{id}/messages/read", h.MarkMessagesRead)
	s.auth("PUT /api/applications/{id}/withdraw", h.Withdraw, domainauth.RoleWorker)
	s.auth("POST /api/applications/{id}/interview", h.ScheduleInterview, domainauth.RoleEmployer)
	s.auth("PUT /api/applications/{id}/evaluation", h.Evaluate, domainauth.RoleEmployer)
}

func (s routeSet) notifications(h *NotificationHandlers) {
	s.auth("GET /api/notifications", h.List)
	s.auth("GET /api/notifications/unread-count", h.UnreadCount)
	s.auth("PUT /api/notifications/read", h.MarkRead)
	s.auth("PUT /api/notifications/{id}/read", h.MarkOneRead)
	s.auth("PUT /api/notifications/{id}/unread", h.MarkUnread)
	s.auth("DELETE /api/notifications/read", h.DeleteAllRead)
	s.auth("DELETE /api/notifications/{id}", h.Delete)
}

func (s routeSet) messages(h *MessageHandlers) {
	s.auth("POST /api/messages", h.Send)
	s.auth("GET /api/messages/conversations", h.Conversations)
	s.auth("GET /api/messages/conversations/{userId}", h.Conversation)
	s.auth("PUT /api/messages/conversations/{userId}/read", h.MarkConversationRead)
	s.auth("DELETE /api/messages/{id}", h.Delete)
}

// notFoundHandler answers unmatched routes with a JSON envelope instead of
// the mux's plain-text 404.
type notFoundHandler struct {
	mux *http.ServeMux
}

func (h *notFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, pattern := h.mux.Handler(r); pattern == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "route_not_found",
			Err:     errors.New("route not found"),
		})
		return
	}
	h.mux.ServeHTTP(w, r)
}
