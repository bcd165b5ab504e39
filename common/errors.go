package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies service-layer failures independently of HTTP.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindServiceUnavailable
	KindNotImplemented
)

// Err is the error type returned by all service-layer operations.
// Handlers render it with AbortWithError.
type Err struct {
	Kind   ErrorKind
	Detail string
}

func (e *Err) Error() string {
	return e.Detail
}

// Status maps an error kind to its HTTP status. Conflict renders as 400
// with a field message, matching the original API contract for duplicate
// username/email signups.
func (e *Err) Status() int {
	switch e.Kind {
	case KindBadRequest, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func BadRequest(format string, args ...interface{}) *Err {
	return &Err{Kind: KindBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *Err {
	return &Err{Kind: KindUnauthorized, Detail: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Err {
	return &Err{Kind: KindForbidden, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Err {
	return &Err{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Err {
	return &Err{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

func ServiceUnavailable(format string, args ...interface{}) *Err {
	return &Err{Kind: KindServiceUnavailable, Detail: fmt.Sprintf(format, args...)}
}

func NotImplemented(format string, args ...interface{}) *Err {
	return &Err{Kind: KindNotImplemented, Detail: fmt.Sprintf(format, args...)}
}

// AbortWithError renders a service error as {"detail": ...} JSON.
func AbortWithError(c *gin.Context, err error) {
	var appErr *Err
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.Status(), gin.H{"detail": appErr.Detail})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}
