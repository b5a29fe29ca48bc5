package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/carbon-registry/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCategorizeServiceError(t *testing.T) {
	cases := []struct {
		code     string
		status   int
		category ErrorCategory
	}{
		{types.CodeInvalidInput, http.StatusBadRequest, CategoryUserInput},
		{types.CodeInvalidAmount, http.StatusBadRequest, CategoryUserInput},
		{types.CodeInvalidPrice, http.StatusBadRequest, CategoryUserInput},
		{types.CodeAlreadyRegistered, http.StatusConflict, CategoryConflict},
		{types.CodeAlreadyListed, http.StatusConflict, CategoryConflict},
		{types.CodeNotFound, http.StatusNotFound, CategoryNotFound},
		{types.CodeNotAuthorized, http.StatusForbidden, CategoryAuthorization},
		{types.CodeNotOwner, http.StatusForbidden, CategoryAuthorization},
		{types.CodeNotVerified, http.StatusForbidden, CategoryAuthorization},
		{types.CodeDeviceInactive, http.StatusConflict, CategoryPrecondition},
		{types.CodeNotForSale, http.StatusConflict, CategoryPrecondition},
		{types.CodeSelfPurchase, http.StatusConflict, CategoryPrecondition},
		{types.CodeWrongPayment, http.StatusUnprocessableEntity, CategoryPrecondition},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			catErr := Categorize(&types.ServiceError{Code: tc.code, Message: "boom"})
			assert.Equal(t, tc.status, catErr.StatusCode)
			assert.Equal(t, tc.category, catErr.Category)
			assert.Equal(t, tc.code, catErr.Code)
		})
	}
}

func TestCategorizeUnknownError(t *testing.T) {
	catErr := Categorize(fmt.Errorf("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, catErr.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", catErr.Code)
	assert.ErrorContains(t, catErr, "connection reset")
}

func TestUserAndSystemErrorClassification(t *testing.T) {
	userErr := &types.ServiceError{Code: types.CodeWrongPayment, Message: "payment must equal listed price"}
	assert.True(t, IsUserError(userErr))
	assert.False(t, IsSystemError(userErr))

	dbErr := NewDatabaseError("insert credit", fmt.Errorf("timeout"))
	assert.True(t, IsSystemError(dbErr))
	assert.False(t, IsUserError(dbErr))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(dbErr))
}
