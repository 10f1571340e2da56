package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

type AnalysisHandler struct {
	analysisSvc AnalysisServiceInterface
	batchSvc    BatchServiceInterface
}

func NewAnalysisHandler(analysisSvc AnalysisServiceInterface, batchSvc BatchServiceInterface) *AnalysisHandler {
	return &AnalysisHandler{
		analysisSvc: analysisSvc,
		batchSvc:    batchSvc,
	}
}

// @Summary Analyze content
// @Description Analyze a piece of content for scam indicators
// @Tags analysis
// @Accept json
// @Produce json
// @Param analyzeRequest body dto.AnalyzeRequest true "Content to analyze"
// @Success 200 {object} shared.Response{data=dto.AnalysisResult}
// @Router /api/v1/analyze [post]
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	_, clientIP := requestIdentity(c)

	result, err := h.analysisSvc.Analyze(c.Context(), &req, rateLimitIdentifier(c), clientIP)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Analysis completed", result)
}

// @Summary Analyze a batch of content
// @Description Analyze up to 20 items concurrently, preserving input order
// @Tags analysis
// @Accept json
// @Produce json
// @Param batchRequest body dto.BatchAnalyzeRequest true "Batch of items to analyze"
// @Success 200 {object} shared.Response{data=dto.BatchAnalyzeResponse}
// @Router /api/v1/analyze/batch [post]
func (h *AnalysisHandler) AnalyzeBatch(c *fiber.Ctx) error {
	var req dto.BatchAnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	_, clientIP := requestIdentity(c)

	result, err := h.batchSvc.ProcessBatch(c.Context(), &req, rateLimitIdentifier(c), clientIP)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Batch analysis completed", result)
}
