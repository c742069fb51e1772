package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SuccessResponse writes 200 with {"data": data}.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, DataEnvelope{Data: data})
}

// ErrorResponse writes statusCode with the error envelope.
func ErrorResponse(c echo.Context, statusCode int, errs interface{}) error {
	return c.JSON(statusCode, ErrorEnvelope{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Errors:  errs,
	})
}

// BadRequestResponse writes bad request error.
func BadRequestResponse(c echo.Context, errs interface{}) error {
	return ErrorResponse(c, http.StatusBadRequest, errs)
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, []*AppError{InternalError("Something went wrong")})
}

// AppErrorResponse writes application error response.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorResponse(c, appErr.Status, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
