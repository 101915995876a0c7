package handlers

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"md2pdf/internal/domain"
	"md2pdf/internal/infra/logging"
)

const (
	invalidInputMessage = `No markdown content provided. Use multipart with "file" or "text" field, or JSON { markdown }.`
	conversionFailed    = "Conversion failed"
)

var unsafeFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeFilename replaces every character outside [a-zA-Z0-9_-] with "_".
// Blank names become domain.DefaultFilename.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.DefaultFilename
	}
	return unsafeFilenameChar.ReplaceAllString(name, "_")
}

// SendPDF writes out as a PDF attachment.
func SendPDF(c *fiber.Ctx, out domain.PDFOutput) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+SanitizeFilename(out.Filename)+`.pdf"`)
	return c.Status(fiber.StatusOK).Send(out.Data)
}

// SendError maps err to the JSON error body of the service.
func SendError(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	if errors.Is(err, domain.ErrInvalidInput) {
		logging.Warn("Rejected conversion request", "error", err, "request_id", requestID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": invalidInputMessage})
	}
	logging.Error("Conversion failed", "error", err, "request_id", requestID)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   conversionFailed,
		"details": err.Error(),
	})
}
