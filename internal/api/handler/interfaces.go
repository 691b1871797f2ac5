package handler

import (
	"context"

	"github.com/sanosuguru/go-flashmob-registry/internal/application"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
)

// RegistryServiceInterface はイベントレジストリサービスのインターフェース
type RegistryServiceInterface interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error)
	JoinEvent(ctx context.Context, input application.JoinEventInput) (*event.Event, error)
	RevealLocation(ctx context.Context, input application.RevealLocationInput) (*event.Event, error)
	ConfirmParticipation(ctx context.Context, input application.ConfirmParticipationInput) (*event.Event, error)
	GetEventDetails(ctx context.Context, id event.ID) (*event.Details, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*event.Details, error)
	IsParticipant(ctx context.Context, id event.ID, p event.Principal) (bool, error)
	HasConfirmed(ctx context.Context, id event.ID, p event.Principal) (bool, error)
	ListOrganizedEvents(ctx context.Context, p event.Principal) ([]event.ID, error)
	ListJoinedEvents(ctx context.Context, p event.Principal) ([]event.ID, error)
}

// NotificationServiceInterface は通知フィードのインターフェース
type NotificationServiceInterface interface {
	ListNotifications(ctx context.Context, afterSeq int64, limit int) ([]*notification.Notification, error)
}
