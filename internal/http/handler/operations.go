package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stegapi/internal/service"
)

// ListOperations godoc
// @Summary      List audit records
// @Tags         operations
// @Produce      json
// @Param        limit   query  int  false  "Page size"  default(10)
// @Param        offset  query  int  false  "Offset"     default(0)
// @Success      200  {object}  service.OperationListResult
// @Failure      400  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /api/operations [get]
func ListOperations(svc service.StegoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListOperations(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetArchive godoc
// @Summary      Download an archived stego image
// @Tags         archive
// @Produce      png
// @Param        id   path  string  true  "Operation ID"
// @Success      200  {file}    binary
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /api/archive/{id} [get]
func GetArchive(svc service.StegoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, info, err := svc.OpenArchive(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Attachment(stegoFilename)
		// fasthttp closes rc once the body has been written.
		return c.SendStream(rc, int(info.Size))
	}
}

// DeleteArchive godoc
// @Summary      Delete an archived stego image
// @Tags         archive
// @Param        id   path  string  true  "Operation ID"
// @Success      204
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /api/archive/{id} [delete]
func DeleteArchive(svc service.StegoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.DeleteArchive(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
