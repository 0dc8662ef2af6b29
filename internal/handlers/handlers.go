// Package handlers — HTTP-обработчики API очередей.
package handlers

import (
	"github.com/gin-gonic/gin"

	"qline/internal/auth"
	"qline/internal/insights"
	"qline/internal/service"
)

// Handler собирает сервисы, которые обслуживают HTTP-запросы.
type Handler struct {
	issuer     *auth.Issuer
	resolver   *auth.Resolver
	lifecycle  *service.LifecycleService
	admission  *service.AdmissionService
	transition *service.TransitionService
	analytics  *service.AnalyticsService
	insights   *insights.Service
}

type Deps struct {
	Issuer     *auth.Issuer
	Resolver   *auth.Resolver
	Lifecycle  *service.LifecycleService
	Admission  *service.AdmissionService
	Transition *service.TransitionService
	Analytics  *service.AnalyticsService
	Insights   *insights.Service
}

func New(d Deps) *Handler {
	return &Handler{
		issuer:     d.Issuer,
		resolver:   d.Resolver,
		lifecycle:  d.Lifecycle,
		admission:  d.Admission,
		transition: d.Transition,
		analytics:  d.Analytics,
		insights:   d.Insights,
	}
}

// Routes регистрирует маршруты API. WebSocket подключается отдельно.
func (h *Handler) Routes(r gin.IRouter) {
	required := h.resolver.Required()
	optional := h.resolver.Optional()

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	queues := r.Group("/queues")
	{
		queues.GET("", h.ListQueues)
		queues.POST("", required, h.CreateQueue)
		queues.GET("/:id", h.GetQueue)
		queues.PUT("/:id", required, h.UpdateQueue)
		queues.DELETE("/:id", required, h.DeleteQueue)

		queues.POST("/:id/join", optional, h.JoinQueue)
		queues.GET("/:id/entries", required, h.ListEntries)
		queues.POST("/:id/entries", required, h.AddEntry)
		queues.PUT("/:id/entries/:entryId", required, h.UpdateEntry)
		queues.DELETE("/:id/entries/:entryId", required, h.LeaveQueue)
		queues.GET("/:id/analytics", required, h.QueueAnalytics)
	}

	r.GET("/my-queue", required, h.MyQueue)
	r.GET("/admin/dashboard", required, h.Dashboard)
	r.POST("/ai/insights", required, h.Insights)
}
