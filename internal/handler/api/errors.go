package api

import (
	"errors"

	domrepo "CardSignals/internal/domain/repository"
	"CardSignals/internal/usecase"
	xhttp "CardSignals/pkg/http"
	"CardSignals/pkg/resilience"
)

// appError maps use case errors onto HTTP errors.
func appError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("resource not found").WithError(err)
	case errors.Is(err, usecase.ErrInvalidQuery):
		return xhttp.BadRequestError(usecase.ErrInvalidQuery.Error())
	case errors.Is(err, domrepo.ErrNotConfigured):
		return xhttp.UnavailableError("backing store not configured").WithError(err)
	case errors.Is(err, domrepo.ErrStoreUnavailable), errors.Is(err, resilience.ErrBreakerOpen):
		return xhttp.UnavailableError("backing store unavailable").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
