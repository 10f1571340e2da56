package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/scamshield-ke/shield_api/shared"
)

type AdminHandler struct {
	cacheSvc CacheManagerInterface
}

func NewAdminHandler(cacheSvc CacheManagerInterface) *AdminHandler {
	return &AdminHandler{
		cacheSvc: cacheSvc,
	}
}

// @Summary Get analysis cache statistics
// @Description Entry count and cache tuning parameters
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=map[string]interface{}}
// @Router /api/v1/admin/cache/stats [get]
func (h *AdminHandler) GetCacheStats(c *fiber.Ctx) error {
	stats, err := h.cacheSvc.Stats(c.Context())
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Cache statistics", stats)
}

// @Summary Clean up expired cache entries
// @Description Remove entries past their TTL from the analysis cache
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=map[string]interface{}}
// @Router /api/v1/admin/cache/cleanup [post]
func (h *AdminHandler) CleanupCache(c *fiber.Ctx) error {
	removed, err := h.cacheSvc.Cleanup(c.Context())
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Cache cleanup completed",
		map[string]interface{}{"removed": removed})
}
