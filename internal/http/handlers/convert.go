// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"md2pdf/internal/domain"
	"md2pdf/internal/infra/chrome"
)

// Converter produces a PDF for a normalized request.
type Converter interface {
	Convert(ctx context.Context, req domain.ConversionRequest) (domain.PDFOutput, error)
}

// ConvertHandler serves POST /convert.
type ConvertHandler struct {
	normalizer *Normalizer
	svc        Converter
}

// NewConvertHandler returns a handler that converts through svc.
func NewConvertHandler(maxFileBytes int64, svc Converter) *ConvertHandler {
	return &ConvertHandler{normalizer: NewNormalizer(maxFileBytes), svc: svc}
}

// Handle normalizes the request, converts it and writes the response.
func (h *ConvertHandler) Handle(c *fiber.Ctx) error {
	req, err := h.normalizer.Normalize(c)
	if err != nil {
		return SendError(c, err)
	}
	out, err := h.svc.Convert(c.UserContext(), req)
	if err != nil {
		return SendError(c, err)
	}
	return SendPDF(c, out)
}

// Health reports liveness.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// StatsSource exposes render engine statistics.
type StatsSource interface {
	Stats() chrome.Stats
}

// EngineStats serves the render engine statistics.
func EngineStats(src StatsSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(src.Stats())
	}
}
