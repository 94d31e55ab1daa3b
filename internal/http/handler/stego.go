package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"stegapi/internal/model"
	"stegapi/internal/service"
)

const (
	// HeaderOperationID carries the audit id of a hide call.
	HeaderOperationID = "X-Operation-ID"
	// HeaderDownloadURL carries the presigned archive link when archiving is enabled.
	HeaderDownloadURL = "X-Download-URL"

	stegoFilename = "secured_image.png"
	maxTimerDelay = 50 * 365 * 24 * time.Hour
)

type extractResponse struct {
	Success          bool   `json:"success,omitempty"`
	Text             string `json:"text,omitempty"`
	RequiresLocation bool   `json:"requiresLocation,omitempty"`
}

// Hide godoc
// @Summary      Hide a message in an image
// @Description  Encrypts text with the password, attaches the optional time and location lock and embeds it into the image. Always returns PNG.
// @Tags         stego
// @Accept       multipart/form-data
// @Produce      png
// @Param        image           formData  file    true   "Cover image"
// @Param        text            formData  string  true   "Secret text"
// @Param        password        formData  string  true   "Password"
// @Param        enableTimer     formData  bool    false  "Enable time lock"
// @Param        minutes         formData  int     false  "Time lock minutes"
// @Param        hours           formData  int     false  "Time lock hours"
// @Param        days            formData  int     false  "Time lock days"
// @Param        enableLocation  formData  bool    false  "Enable location lock"
// @Param        lat             formData  number  false  "Latitude of the allowed area"
// @Param        lng             formData  number  false  "Longitude of the allowed area"
// @Success      200  {file}    binary
// @Failure      400  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      415  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/hide [post]
func Hide(svc service.StegoService, maxImageBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "No image provided")
		}
		if maxImageBytes > 0 && fh.Size > maxImageBytes {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "image exceeds the upload size limit")
		}

		req := service.HideRequest{
			Text:      c.FormValue("text"),
			Password:  c.FormValue("password"),
			RequestID: requestIDFromCtx(c),
		}
		if req.Text == "" || req.Password == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "Text and password are required")
		}

		if formFlag(c, "enableTimer") {
			d, err := timerDelay(c)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
			}
			req.Delay = &d
		}
		if formFlag(c, "enableLocation") {
			at, err := formCoordinates(c, "lat", "lng")
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
			}
			if at == nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "lat and lng are required when the location lock is enabled")
			}
			req.Location = at
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "cannot open uploaded image")
		}
		defer f.Close()
		req.Image = f

		res, err := svc.Hide(c.UserContext(), req)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Set(HeaderOperationID, res.OperationID)
		if res.DownloadURL != "" {
			c.Set(HeaderDownloadURL, res.DownloadURL)
		}
		c.Attachment(stegoFilename)
		return c.Status(fiber.StatusOK).Send(res.PNG)
	}
}

// Extract godoc
// @Summary      Extract a hidden message
// @Description  Reads the envelope from the image, checks the time and location lock and decrypts with the password.
// @Tags         stego
// @Accept       multipart/form-data
// @Produce      json
// @Param        image     formData  file    true   "Stego image"
// @Param        password  formData  string  true   "Password"
// @Param        userLat   formData  number  false  "Caller latitude"
// @Param        userLng   formData  number  false  "Caller longitude"
// @Success      200  {object}  extractResponse
// @Failure      400  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      415  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/extract [post]
func Extract(svc service.StegoService, maxImageBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "No image provided")
		}
		if maxImageBytes > 0 && fh.Size > maxImageBytes {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "image exceeds the upload size limit")
		}

		req := service.ExtractRequest{
			Password:  c.FormValue("password"),
			RequestID: requestIDFromCtx(c),
		}
		if req.Password == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "Password is required")
		}
		at, err := formCoordinates(c, "userLat", "userLng")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
		}
		req.Location = at

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "cannot open uploaded image")
		}
		defer f.Close()
		req.Image = f

		res, err := svc.Extract(c.UserContext(), req)
		if err != nil {
			return writeServiceError(c, err)
		}

		switch res.Status {
		case model.StatusSuccess:
			return c.JSON(extractResponse{Success: true, Text: string(res.Plaintext)})
		case model.StatusRequiresLocation:
			return c.JSON(extractResponse{RequiresLocation: true})
		}

		switch res.Reason {
		case model.ReasonNotYetAvailable:
			return writeError(c, fiber.StatusForbidden, "NOT_YET_AVAILABLE", "This message is not yet available")
		case model.ReasonOutOfRange:
			return writeError(c, fiber.StatusForbidden, "OUT_OF_RANGE", "You are outside the allowed area")
		default:
			return writeError(c, fiber.StatusBadRequest, "INVALID_PASSWORD", "invalid password or corrupted image")
		}
	}
}

// writeServiceError translates service errors into the error contract.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrCapacityExceeded):
		return writeError(c, fiber.StatusBadRequest, "CAPACITY_EXCEEDED", "message is too long for this image")
	case errors.Is(err, service.ErrImageTooLarge):
		return writeError(c, fiber.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "image dimensions exceed the allowed limit")
	case errors.Is(err, service.ErrUnsupportedImage):
		return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE", "unsupported or unreadable image")
	case errors.Is(err, service.ErrFeatureDisabled):
		return writeError(c, fiber.StatusServiceUnavailable, "FEATURE_DISABLED", "feature is not configured")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "archive not found")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// formFlag accepts the checkbox encodings browsers and curl users send.
func formFlag(c *fiber.Ctx, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.FormValue(key))) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
}

func timerDelay(c *fiber.Ctx) (time.Duration, error) {
	units := []struct {
		key  string
		unit time.Duration
	}{
		{"minutes", time.Minute},
		{"hours", time.Hour},
		{"days", 24 * time.Hour},
	}

	var total time.Duration
	for _, u := range units {
		raw := strings.TrimSpace(c.FormValue(u.key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number", u.key)
		}
		if n < 0 {
			return 0, fmt.Errorf("%s must not be negative", u.key)
		}
		if n > int(maxTimerDelay/u.unit) {
			return 0, fmt.Errorf("%s is too large", u.key)
		}
		total += time.Duration(n) * u.unit
	}
	if total > maxTimerDelay {
		return 0, fmt.Errorf("time lock is too long")
	}
	return total, nil
}

// formCoordinates returns nil when both fields are absent.
func formCoordinates(c *fiber.Ctx, latKey, lngKey string) (*model.Coordinates, error) {
	latRaw := strings.TrimSpace(c.FormValue(latKey))
	lngRaw := strings.TrimSpace(c.FormValue(lngKey))
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lngRaw == "" {
		return nil, fmt.Errorf("%s and %s must be sent together", latKey, lngKey)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", latKey)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", lngKey)
	}
	at := &model.Coordinates{Lat: lat, Lng: lng}
	if !at.Valid() {
		return nil, fmt.Errorf("%s/%s are out of range", latKey, lngKey)
	}
	return at, nil
}
