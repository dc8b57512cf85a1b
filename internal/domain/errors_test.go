package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"Validation", Validation("bad"), http.StatusBadRequest},
		{"Unauthenticated", Unauthenticated("no"), http.StatusUnauthorized},
		{"Forbidden", Forbidden(ReasonPendingModeration, "wait", nil), http.StatusForbidden},
		{"NotFound", NotFound("task"), http.StatusNotFound},
		{"Transition", Conflict(CodeInvalidTransition, "no", nil), http.StatusConflict},
		{"Balance", Conflict(CodeInsufficientBalance, "no", nil), http.StatusBadRequest},
		{"Stock", Conflict(CodeInsufficientStock, "no", nil), http.StatusBadRequest},
		{"Unavailable", Conflict(CodeItemUnavailable, "no", nil), http.StatusBadRequest},
		{"Internal", Internal(errors.New("db")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := fmt.Errorf("purchase: %w", Internal(cause))

	de, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindInternal, de.Kind)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, KindNotFound, KindOf(NotFound("report")))
	assert.Contains(t, Conflict(CodeInUse, "used", nil).Error(), "in_use")
}
