package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/geoflow/geoflow/core/infrastructure/logging"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/dto"
	"github.com/geoflow/geoflow/core/observability"
	"github.com/geoflow/geoflow/core/shared/errors"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger logging.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(tag string) *BaseHandler {
	return &BaseHandler{
		logger: logging.New(tag),
	}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteError writes an error response. Errors without an AppError in their
// chain are reported as internal errors.
func (h *BaseHandler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewAppError(errors.ErrCodeInternalError, "internal server error", err)
	}

	log := observability.WithTrace(r.Context(), h.logger)
	if appErr.Status >= http.StatusInternalServerError {
		log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		log.Debugf("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}

	resp := dto.ErrorResponse{
		Success: false,
		Code:    string(appErr.Code),
		Error:   appErr.Message,
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp.Details = validationDetails(verrs)
	}
	h.WriteJSON(w, appErr.Status, resp)
}

// WriteSuccess writes a success response
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, data any) {
	h.WriteJSON(w, http.StatusOK, data)
}

// Bind decodes the JSON body into dst and validates it
func (h *BaseHandler) Bind(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.WrapError(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid JSON body: %v", err), err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.WrapError(errors.ErrCodeValidationError, "validation failed", err)
	}
	return nil
}

func validationDetails(verrs validator.ValidationErrors) []dto.ErrorDetail {
	details := make([]dto.ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, dto.ErrorDetail{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fmt.Sprintf("failed '%s' validation", fe.Tag()),
		})
	}
	return details
}
