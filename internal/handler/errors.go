package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// sessionErrorCode maps exam and session errors to their HTTP status and code.
func sessionErrorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, service.ErrSessionNotStarted):
		return http.StatusNotFound, response.ErrSessionNotStarted
	case errors.Is(err, service.ErrSessionInProgress):
		return http.StatusConflict, response.ErrSessionInProgress
	case errors.Is(err, service.ErrResultNotReleased):
		return http.StatusForbidden, response.ErrResultNotReleased
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrInvalidSignal):
		return http.StatusBadRequest, response.ErrInvalidSignal
	case errors.Is(err, model.ErrInvalidAnswer),
		errors.Is(err, model.ErrNotAnswerable),
		errors.Is(err, model.ErrUnknownQuestionType):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failSession writes the error envelope for err, logging unexpected errors.
func failSession(c *gin.Context, log zerolog.Logger, err error) {
	status, code := sessionErrorCode(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// paramUUID parses a path parameter, writing 400 INVALID_ID when malformed.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
