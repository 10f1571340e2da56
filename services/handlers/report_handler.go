package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

type ReportHandler struct {
	reportSvc ReportServiceInterface
}

func NewReportHandler(reportSvc ReportServiceInterface) *ReportHandler {
	return &ReportHandler{
		reportSvc: reportSvc,
	}
}

// @Summary Submit a scam report
// @Description Submit a scam sighting for review; anonymous submissions allowed
// @Tags reports
// @Accept json
// @Produce json
// @Param reportRequest body dto.SubmitReportRequest true "Report details"
// @Success 201 {object} shared.Response{data=dto.SubmitReportResponse}
// @Router /api/v1/reports [post]
func (h *ReportHandler) SubmitReport(c *fiber.Ctx) error {
	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID, clientIP := requestIdentity(c)

	resp, err := h.reportSvc.SubmitReport(req, userID, clientIP)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Report submitted successfully", resp)
}

// @Summary Get trending scams
// @Description Recent unsafe reports grouped by category over the trailing week
// @Tags reports
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=dto.TrendingResponse}
// @Router /api/v1/reports/trending [get]
func (h *ReportHandler) GetTrending(c *fiber.Ctx) error {
	resp, err := h.reportSvc.GetTrending(c.Context())
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}
