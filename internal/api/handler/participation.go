package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-flashmob-registry/internal/application"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
)

// ParticipationHandler は参加登録・場所公開・出席確認のハンドラー
type ParticipationHandler struct {
	service RegistryServiceInterface
}

func NewParticipationHandler(service RegistryServiceInterface) *ParticipationHandler {
	return &ParticipationHandler{service: service}
}

type RevealLocationRequest struct {
	Location string `json:"location" validate:"required" example:"渋谷スクランブル交差点"`
}

type MembershipResponse struct {
	Joined bool `json:"joined"`
}

type ConfirmationResponse struct {
	Confirmed bool `json:"confirmed"`
}

// Join godoc
// @Summary イベントに参加登録
// @Description 開催時刻前のイベントに参加登録します（二重登録は409）
// @Tags participation
// @Produce json
// @Param X-User-ID header string true "参加者ID"
// @Param id path int true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /events/{id}/join [post]
func (h *ParticipationHandler) Join(c echo.Context) error {
	participant, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	e, err := h.service.JoinEvent(c.Request().Context(), application.JoinEventInput{
		EventID:     id,
		Participant: participant,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Reveal godoc
// @Summary 開催場所を公開
// @Description 公開時刻以降に主催者が開催場所を公開します（一度のみ）
// @Tags participation
// @Accept json
// @Produce json
// @Param X-User-ID header string true "主催者ID"
// @Param id path int true "イベントID"
// @Param request body RevealLocationRequest true "開催場所"
// @Success 200 {object} EventResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /events/{id}/reveal [post]
func (h *ParticipationHandler) Reveal(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	var req RevealLocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	e, err := h.service.RevealLocation(c.Request().Context(), application.RevealLocationInput{
		EventID:  id,
		Caller:   caller,
		Location: req.Location,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Confirm godoc
// @Summary 出席を確認
// @Description 場所公開後、参加登録済みの参加者が出席を確認します
// @Tags participation
// @Produce json
// @Param X-User-ID header string true "参加者ID"
// @Param id path int true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /events/{id}/confirm [post]
func (h *ParticipationHandler) Confirm(c echo.Context) error {
	participant, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	e, err := h.service.ConfirmParticipation(c.Request().Context(), application.ConfirmParticipationInput{
		EventID:     id,
		Participant: participant,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// IsParticipant godoc
// @Summary 参加登録状況を取得
// @Description 指定の呼び出し元が参加登録済みかを返します
// @Tags participation
// @Produce json
// @Param id path int true "イベントID"
// @Param principal path string true "参加者ID"
// @Success 200 {object} MembershipResponse
// @Failure 404 {object} map[string]string
// @Router /events/{id}/participants/{principal} [get]
func (h *ParticipationHandler) IsParticipant(c echo.Context) error {
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	joined, err := h.service.IsParticipant(c.Request().Context(), id, event.Principal(c.Param("principal")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, MembershipResponse{Joined: joined})
}

// HasConfirmed godoc
// @Summary 出席確認状況を取得
// @Description 指定の呼び出し元が出席確認済みかを返します
// @Tags participation
// @Produce json
// @Param id path int true "イベントID"
// @Param principal path string true "参加者ID"
// @Success 200 {object} ConfirmationResponse
// @Failure 404 {object} map[string]string
// @Router /events/{id}/confirmations/{principal} [get]
func (h *ParticipationHandler) HasConfirmed(c echo.Context) error {
	id, err := parseEventID(c)
	if err != nil {
		return err
	}

	confirmed, err := h.service.HasConfirmed(c.Request().Context(), id, event.Principal(c.Param("principal")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ConfirmationResponse{Confirmed: confirmed})
}
