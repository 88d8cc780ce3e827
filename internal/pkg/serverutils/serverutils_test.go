package serverutils_test

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"smartpdf-web/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryRequest struct {
	Query string `json:"query" validate:"required,max=5"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, serverutils.ValidateRequest(queryRequest{Query: "hi"}))

	err := serverutils.ValidateRequest(queryRequest{})
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Equal(t, "query is required", fe.Message)

	err = serverutils.ValidateRequest(queryRequest{Query: "too long"})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "query is too long (max 5)", fe.Message)
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "busy")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("database password leaked here")
	})
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.JSON(serverutils.SuccessResponse("fine", map[string]int{"n": 1}))
	})

	tests := []struct {
		path        string
		wantCode    int
		wantSuccess bool
		wantMessage string
	}{
		{"/conflict", fiber.StatusConflict, false, "busy"},
		{"/boom", fiber.StatusInternalServerError, false, "Internal server error"},
		{"/ok", fiber.StatusOK, true, "fine"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body serverutils.BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantSuccess, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}
