package middleware

import "github.com/gofiber/fiber/v2"

// responseStatus returns the status the client will see. The global error handler
// runs after middleware returns, so an error's code wins over the recorded status.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	if fiberErr, ok := err.(*fiber.Error); ok {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
