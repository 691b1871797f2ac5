package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes はAPIのルーティングを設定する
func RegisterRoutes(
	e *echo.Echo,
	eventHandler *EventHandler,
	participationHandler *ParticipationHandler,
	notificationHandler *NotificationHandler,
	healthHandler *HealthHandler,
) {
	e.GET("/health", healthHandler.Check)

	v1 := e.Group("/api/v1")

	v1.POST("/events", eventHandler.Create)
	v1.GET("/events", eventHandler.List)
	v1.GET("/events/:id", eventHandler.GetByID)

	v1.POST("/events/:id/join", participationHandler.Join)
	v1.POST("/events/:id/reveal", participationHandler.Reveal)
	v1.POST("/events/:id/confirm", participationHandler.Confirm)
	v1.GET("/events/:id/participants/:principal", participationHandler.IsParticipant)
	v1.GET("/events/:id/confirmations/:principal", participationHandler.HasConfirmed)

	v1.GET("/organizers/:principal/events", eventHandler.ListOrganized)
	v1.GET("/participants/:principal/events", eventHandler.ListJoined)

	v1.GET("/notifications", notificationHandler.List)
}
