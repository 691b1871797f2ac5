package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
)

// NotificationHandler はライフサイクル通知フィードのハンドラー
type NotificationHandler struct {
	service NotificationServiceInterface
}

func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type NotificationResponse struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type" example:"event.created"`
	EventID    int64           `json:"event_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurred_at"`
}

func toNotificationResponse(n *notification.Notification) NotificationResponse {
	return NotificationResponse{
		Seq:        n.Seq,
		Type:       string(n.Type),
		EventID:    int64(n.EventID),
		Payload:    n.Payload,
		OccurredAt: n.OccurredAt.Format(time.RFC3339),
	}
}

// List godoc
// @Summary 通知フィードを取得
// @Description 指定Seqより後のライフサイクル通知をSeq順に取得します
// @Tags notifications
// @Produce json
// @Param after query int false "このSeqより後の通知を取得" default(0)
// @Param limit query int false "取得件数" default(50)
// @Success 200 {array} NotificationResponse
// @Router /notifications [get]
func (h *NotificationHandler) List(c echo.Context) error {
	after, _ := strconv.ParseInt(c.QueryParam("after"), 10, 64)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	notifications, err := h.service.ListNotifications(c.Request().Context(), after, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	responses := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = toNotificationResponse(n)
	}
	return c.JSON(http.StatusOK, responses)
}
