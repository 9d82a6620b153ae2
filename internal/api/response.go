package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ideaengine/ideaengine/internal/apperr"
)

// Response is the standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse sends a 200 success response.
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreatedResponse sends a 201 created response.
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, &Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response with the given status code.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, &Response{
		Success: false,
		Message: message,
	})
}

// BadRequestError sends a 400 error.
func BadRequestError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// NotFoundError sends a 404 error.
func NotFoundError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

// ConflictError sends a 409 error.
func ConflictError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusConflict, message)
}

// InternalError sends a 500 error.
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}

// UnauthorizedError sends a 401 error.
func UnauthorizedError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

// PayloadTooLargeError sends a 413 error.
func PayloadTooLargeError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusRequestEntityTooLarge, message)
}

// RespondError maps an apperr.Kind-carrying error to the right HTTP
// status, falling back to 500 for anything unrecognized.
func RespondError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		BadRequestError(c, err.Error())
	case apperr.KindNotFound:
		NotFoundError(c, err.Error())
	case apperr.KindConflict:
		ConflictError(c, err.Error())
	case apperr.KindOracle:
		ErrorResponse(c, http.StatusBadGateway, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
