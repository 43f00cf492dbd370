package controller

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	calls int
	value map[string]any
	err   error
}

func (s *stubSource) FetchSingleType(_ context.Context, name string) (map[string]any, error) {
	s.calls++
	if name != deliverySingleType {
		return nil, errors.New("unexpected single type " + name)
	}
	return s.value, s.err
}

func newDeliveryApp(src SingleTypeSource) *fiber.App {
	app := fiber.New()
	ctl := NewDeliveryController(src, time.Minute, nil, zap.NewNop())
	app.Get("/settings/delivery", ctl.Get)
	return app
}

func getDelivery(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestDeliverySettingsCached(t *testing.T) {
	src := &stubSource{value: map[string]any{"freeFrom": 3000}}
	app := newDeliveryApp(src)

	status, body := getDelivery(t, app, "/settings/delivery")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["cached"])
	assert.EqualValues(t, 3000, body["settings"].(map[string]any)["freeFrom"])

	_, body = getDelivery(t, app, "/settings/delivery")
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, 1, src.calls)

	_, body = getDelivery(t, app, "/settings/delivery?force=true")
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 2, src.calls)
}

func TestDeliverySettingsUnavailable(t *testing.T) {
	app := newDeliveryApp(&stubSource{err: errors.New("store down")})

	status, body := getDelivery(t, app, "/settings/delivery")
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, false, body["success"])
}
