package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/gearline/crm/pkg/bulkdispatch"
	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/leadassignment"
	"github.com/gearline/crm/pkg/leadintake"
	"github.com/gearline/crm/pkg/leadscoring"
	"github.com/gearline/crm/pkg/snapshot"
	"github.com/gearline/crm/pkg/templatecache"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Handler holds the services behind the HTTP surface.
type Handler struct {
	Intake     *leadintake.Service
	Scoring    *leadscoring.Service
	Assignment *leadassignment.Service
	Snapshots  *snapshot.Service
	Templates  *templatecache.Service
	Dispatcher *bulkdispatch.Engine
	PushStore  domain.PushStore
	LeadStore  domain.AssignmentStore
	ScoreStore domain.ScoreStore
	JobStore   domain.BulkJobStore
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError maps domain error codes onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsConflict(err):
		status = http.StatusConflict
	case domain.IsCapacityExceeded(err), domain.IsDailyLimitExceeded(err):
		status = http.StatusUnprocessableEntity
	case domain.IsProviderUnavailable(err):
		status = http.StatusBadGateway
	}
	return c.JSON(status, errorResponse{
		Error: err.Error(),
		Code:  domain.GetErrorCode(err),
	})
}
