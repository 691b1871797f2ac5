package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-flashmob-registry/internal/application"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
)

type EventHandler struct {
	service RegistryServiceInterface
}

func NewEventHandler(service RegistryServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

type CreateEventRequest struct {
	Name     string `json:"name" validate:"required" example:"渋谷ゲリラダンス"`
	RevealAt string `json:"reveal_at" validate:"required" example:"2025-12-31T17:00:00+09:00"`
	StartAt  string `json:"start_at" validate:"required" example:"2025-12-31T18:00:00+09:00"`
}

type EventResponse struct {
	ID               int64  `json:"id" example:"0"`
	Organizer        string `json:"organizer" example:"user-123"`
	Name             string `json:"name" example:"渋谷ゲリラダンス"`
	Location         string `json:"location" example:""`
	RevealAt         string `json:"reveal_at" example:"2025-12-31T17:00:00+09:00"`
	StartAt          string `json:"start_at" example:"2025-12-31T18:00:00+09:00"`
	ParticipantCount int    `json:"participant_count" example:"0"`
	Active           bool   `json:"active" example:"true"`
	Revealed         bool   `json:"revealed" example:"false"`
}

func toEventResponse(e *event.Event) *EventResponse {
	return toDetailsResponse(e.Details())
}

func toDetailsResponse(d *event.Details) *EventResponse {
	return &EventResponse{
		ID:               int64(d.ID),
		Organizer:        string(d.Organizer),
		Name:             d.Name,
		Location:         d.Location,
		RevealAt:         d.RevealAt.Format(time.RFC3339),
		StartAt:          d.StartAt.Format(time.RFC3339),
		ParticipantCount: d.ParticipantCount,
		Active:           d.Active,
		Revealed:         d.Revealed,
	}
}

type EventIDsResponse struct {
	EventIDs []int64 `json:"event_ids"`
}

func toEventIDsResponse(ids []event.ID) EventIDsResponse {
	result := make([]int64, len(ids))
	for i, id := range ids {
		result[i] = int64(id)
	}
	return EventIDsResponse{EventIDs: result}
}

// callerID はリクエストヘッダーから呼び出し元の識別子を取り出す
func callerID(c echo.Context) (event.Principal, error) {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	return event.Principal(userID), nil
}

// parseEventID はパスパラメーターからイベントIDを取り出す
func parseEventID(c echo.Context) (event.ID, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "イベントIDの形式が不正です")
	}
	return event.ID(id), nil
}

// Create godoc
// @Summary イベントを作成
// @Description 新しいフラッシュモブイベントを作成します（開催場所は公開時刻まで非公開）
// @Tags events
// @Accept json
// @Produce json
// @Param X-User-ID header string true "主催者ID"
// @Param request body CreateEventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	organizer, err := callerID(c)
	if err != nil {
		return err
	}

	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	revealAt, err := time.Parse(time.RFC3339, req.RevealAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "公開時刻の形式が不正です")
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "開催時刻の形式が不正です")
	}

	e, err := h.service.CreateEvent(c.Request().Context(), application.CreateEventInput{
		Organizer: organizer,
		Name:      req.Name,
		RevealAt:  revealAt,
		StartAt:   startAt,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, toEventResponse(e))
}

// GetByID godoc
// @Summary イベント詳細を取得
// @Description 指定IDのイベントの公開スナップショットを取得します
// @Tags events
// @Produce json
// @Param id path int true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} map[string]string
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	details, err := h.service.GetEventDetails(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toDetailsResponse(details))
}

// List godoc
// @Summary イベント一覧を取得
// @Description イベント詳細の一覧をID順に取得します
// @Tags events
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	details, err := h.service.ListEvents(c.Request().Context(), limit, offset)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]*EventResponse, len(details))
	for i, d := range details {
		responses[i] = toDetailsResponse(d)
	}
	return c.JSON(http.StatusOK, responses)
}

// ListOrganized godoc
// @Summary 主催イベント一覧を取得
// @Description 指定の主催者が作成したイベントIDを作成順に取得します
// @Tags events
// @Produce json
// @Param principal path string true "主催者ID"
// @Success 200 {object} EventIDsResponse
// @Router /organizers/{principal}/events [get]
func (h *EventHandler) ListOrganized(c echo.Context) error {
	p := event.Principal(c.Param("principal"))
	ids, err := h.service.ListOrganizedEvents(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventIDsResponse(ids))
}

// ListJoined godoc
// @Summary 参加イベント一覧を取得
// @Description 指定の参加者が参加登録したイベントIDを登録順に取得します
// @Tags events
// @Produce json
// @Param principal path string true "参加者ID"
// @Success 200 {object} EventIDsResponse
// @Router /participants/{principal}/events [get]
func (h *EventHandler) ListJoined(c echo.Context) error {
	p := event.Principal(c.Param("principal"))
	ids, err := h.service.ListJoinedEvents(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventIDsResponse(ids))
}
