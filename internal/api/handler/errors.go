package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
)

// toHTTPError はドメインエラーをHTTPステータスに対応付ける
// すべて事前条件違反であり、呼び出し元が正しいコマンドを再送して解消する
func toHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, event.ErrEventNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, event.ErrNotOrganizer),
		errors.Is(err, event.ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, event.ErrAlreadyJoined),
		errors.Is(err, event.ErrAlreadyRevealed),
		errors.Is(err, event.ErrAlreadyConfirmed),
		errors.Is(err, event.ErrRevealTooEarly),
		errors.Is(err, event.ErrNotRevealed),
		errors.Is(err, event.ErrEventPassed),
		errors.Is(err, event.ErrEventInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, event.ErrInvalidSchedule),
		errors.Is(err, event.ErrEventNameRequired),
		errors.Is(err, event.ErrLocationRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
