package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/licensing"
	"github.com/iliyamo/beat-license-registry/internal/middleware"
	"github.com/iliyamo/beat-license-registry/internal/model"
)

// BeatLicenseHandler exposes the licensing registry over HTTP.
type BeatLicenseHandler struct {
	Registry *licensing.Registry
	Logger   *zap.Logger
}

// NewBeatLicenseHandler panics on a nil registry.
func NewBeatLicenseHandler(reg *licensing.Registry, logger *zap.Logger) *BeatLicenseHandler {
	if reg == nil {
		panic("nil registry passed to NewBeatLicenseHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BeatLicenseHandler{Registry: reg, Logger: logger}
}

// callerID returns the authenticated user id or "" for anonymous calls.
func callerID(c echo.Context) string {
	id, _ := middleware.UserID(c)
	return id
}

// CreatePurchase handles POST /internal/v1/beat-licenses.
func (h *BeatLicenseHandler) CreatePurchase(c echo.Context) error {
	var in licensing.PurchaseInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	res, err := h.Registry.CreateBeatLicensePurchase(c.Request().Context(), in)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type exclusiveSaleRequest struct {
	UserID     string `json:"user_id"`
	PurchaseID string `json:"purchase_id"`
}

// MarkExclusiveSale handles POST /internal/v1/beats/:id/exclusive-sale.
func (h *BeatLicenseHandler) MarkExclusiveSale(c echo.Context) error {
	var req exclusiveSaleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	if err := h.Registry.MarkBeatAsExclusivelySold(c.Request().Context(), c.Param("id"), req.UserID, req.PurchaseID); err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Availability handles GET /v1/beats/:id/availability.
func (h *BeatLicenseHandler) Availability(c echo.Context) error {
	a, err := h.Registry.IsBeatAvailable(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Tiers handles GET /v1/beats/:id/tiers.
func (h *BeatLicenseHandler) Tiers(c echo.Context) error {
	listing, err := h.Registry.GetBeatLicenseTiers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if listing == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "beat not found"})
	}
	return c.JSON(http.StatusOK, listing)
}

// LicenseByPurchase handles GET /v1/purchases/:id/beat-license.
func (h *BeatLicenseHandler) LicenseByPurchase(c echo.Context) error {
	l, err := h.Registry.GetBeatLicenseByPurchase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if l == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "license not found"})
	}
	return c.JSON(http.StatusOK, l)
}

// UserLicenses handles GET /v1/users/:user_id/beat-licenses.
func (h *BeatLicenseHandler) UserLicenses(c echo.Context) error {
	items, err := h.Registry.GetUserBeatLicenses(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CheckLicense handles GET /v1/users/:user_id/beats/:beat_id/license.
// The optional ?tier= narrows the check to one tier type.
func (h *BeatLicenseHandler) CheckLicense(c echo.Context) error {
	tier := model.TierType(strings.ToLower(strings.TrimSpace(c.QueryParam("tier"))))
	res, err := h.Registry.CheckUserBeatLicense(c.Request().Context(), c.Param("user_id"), c.Param("beat_id"), tier)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// StoreSales handles GET /v1/stores/:id/beat-sales.
func (h *BeatLicenseHandler) StoreSales(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}
	sales, err := h.Registry.GetCreatorBeatSales(c.Request().Context(), callerID(c), c.Param("id"), limit)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": sales})
}

// MarkContract handles POST /v1/beat-licenses/:id/contract.
func (h *BeatLicenseHandler) MarkContract(c echo.Context) error {
	if err := h.Registry.MarkContractGenerated(c.Request().Context(), callerID(c), c.Param("id")); err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type updateTiersRequest struct {
	Tiers []model.Tier `json:"tiers"`
}

// UpdateTiers handles PUT /v1/beats/:id/tiers.
func (h *BeatLicenseHandler) UpdateTiers(c echo.Context) error {
	var req updateTiersRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}
	if err := h.Registry.UpdateBeatTiers(c.Request().Context(), callerID(c), c.Param("id"), req.Tiers); err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
