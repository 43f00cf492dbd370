package controller

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront_backend/internals/features/settings/delivery/service"
	helper "storefront_backend/internals/helpers"
)

// SingleTypeSource is the store call behind the delivery settings.
type SingleTypeSource interface {
	FetchSingleType(ctx context.Context, name string) (map[string]any, error)
}

const deliverySingleType = "delivery-setting"

type DeliveryController struct {
	cache *service.Cache[map[string]any]
	log   *zap.Logger
}

func NewDeliveryController(src SingleTypeSource, ttl time.Duration, now func() time.Time, logger *zap.Logger) *DeliveryController {
	log := logger.Named("delivery-settings")
	return &DeliveryController{
		cache: service.NewCache(ttl, now, func(ctx context.Context) (map[string]any, error) {
			v, err := src.FetchSingleType(ctx, deliverySingleType)
			if err != nil {
				log.Warn("refresh failed", zap.Error(err))
			}
			return v, err
		}),
		log: log,
	}
}

type deliveryResponse struct {
	Success   bool           `json:"success"`
	Settings  map[string]any `json:"settings"`
	Cached    bool           `json:"cached"`
	Stale     bool           `json:"stale,omitempty"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// GET /api/settings/delivery?force=1
func (h *DeliveryController) Get(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)
	snap, err := h.cache.Get(c.UserContext(), force)
	if err != nil {
		return helper.JsonErrorDetail(c, fiber.StatusBadGateway, "delivery settings unavailable", err)
	}
	return helper.JsonOK(c, deliveryResponse{
		Success:   true,
		Settings:  snap.Value,
		Cached:    snap.Cached,
		Stale:     snap.Stale,
		FetchedAt: snap.FetchedAt,
	})
}
