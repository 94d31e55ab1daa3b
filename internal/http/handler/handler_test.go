package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stegapi/internal/http/middleware"
	"stegapi/internal/model"
	"stegapi/internal/service"
	serviceMocks "stegapi/internal/service/mocks"
	"stegapi/internal/storage"
)

const maxUpload = 1 << 20

func multipartRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if image != nil {
		part, err := writer.CreateFormFile("image", "cover.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	return app
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Code)
	})

	t.Run("no database configured", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHide(t *testing.T) {
	mockSvc := new(serviceMocks.MockStegoService)
	app := newApp()
	app.Post("/api/hide", Hide(mockSvc, maxUpload))

	cover := []byte("fake image bytes")

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Hide", mock.Anything, mock.MatchedBy(func(r service.HideRequest) bool {
			return r.Text == "secret" && r.Password == "pw" && r.Delay == nil && r.Location == nil &&
				r.Image != nil && r.RequestID == "rid-1"
		})).Return(&service.HideResult{
			PNG:         []byte("\x89PNG-data"),
			OperationID: "op-1",
			DownloadURL: "https://minio.local/x",
		}, nil).Once()

		req := multipartRequest(t, "/api/hide", cover, map[string]string{"text": "secret", "password": "pw"})
		req.Header.Set(middleware.RequestIDHeader, "rid-1")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="secured_image.png"`)
		assert.Equal(t, "op-1", resp.Header.Get(HeaderOperationID))
		assert.Equal(t, "https://minio.local/x", resp.Header.Get(HeaderDownloadURL))
		assert.Equal(t, "rid-1", resp.Header.Get(middleware.RequestIDHeader))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "\x89PNG-data", string(body))
		mockSvc.AssertExpectations(t)
	})

	t.Run("time and location lock", func(t *testing.T) {
		mockSvc.On("Hide", mock.Anything, mock.MatchedBy(func(r service.HideRequest) bool {
			return r.Delay != nil && *r.Delay == 25*time.Hour+30*time.Minute &&
				r.Location != nil && r.Location.Lat == 52.2297 && r.Location.Lng == 21.0122
		})).Return(&service.HideResult{PNG: []byte("png"), OperationID: "op-2"}, nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/hide", cover, map[string]string{
			"text": "secret", "password": "pw",
			"enableTimer": "true", "minutes": "30", "hours": "1", "days": "1",
			"enableLocation": "true", "lat": "52.2297", "lng": "21.0122",
		}))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get(HeaderDownloadURL))
		mockSvc.AssertExpectations(t)
	})

	t.Run("timer enabled with no offset", func(t *testing.T) {
		mockSvc.On("Hide", mock.Anything, mock.MatchedBy(func(r service.HideRequest) bool {
			return r.Delay != nil && *r.Delay == 0
		})).Return(&service.HideResult{PNG: []byte("png")}, nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/hide", cover, map[string]string{
			"text": "secret", "password": "pw", "enableTimer": "true",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	badInputs := []struct {
		name    string
		image   []byte
		fields  map[string]string
		wantMsg string
	}{
		{"no image", nil, map[string]string{"text": "a", "password": "b"}, "No image provided"},
		{"no text", cover, map[string]string{"password": "b"}, "Text and password are required"},
		{"no password", cover, map[string]string{"text": "a"}, "Text and password are required"},
		{"non numeric minutes", cover, map[string]string{"text": "a", "password": "b", "enableTimer": "true", "minutes": "ten"}, "minutes must be a whole number"},
		{"negative hours", cover, map[string]string{"text": "a", "password": "b", "enableTimer": "true", "hours": "-1"}, "hours must not be negative"},
		{"huge days", cover, map[string]string{"text": "a", "password": "b", "enableTimer": "true", "days": "99999999"}, "days is too large"},
		{"location without coordinates", cover, map[string]string{"text": "a", "password": "b", "enableLocation": "true"}, "lat and lng are required when the location lock is enabled"},
		{"location with one coordinate", cover, map[string]string{"text": "a", "password": "b", "enableLocation": "true", "lat": "1"}, "lat and lng must be sent together"},
		{"latitude out of range", cover, map[string]string{"text": "a", "password": "b", "enableLocation": "true", "lat": "95", "lng": "1"}, "lat/lng are out of range"},
	}
	for _, tt := range badInputs {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(multipartRequest(t, "/api/hide", tt.image, tt.fields))
			require.NoError(t, err)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeError(t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, "INVALID_INPUT", body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}

	t.Run("upload over limit", func(t *testing.T) {
		app := newApp()
		app.Post("/api/hide", Hide(mockSvc, 4))

		resp, err := app.Test(multipartRequest(t, "/api/hide", cover, map[string]string{"text": "a", "password": "b"}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "IMAGE_TOO_LARGE", decodeError(t, resp).Code)
	})

	serviceErrors := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"capacity", fmt.Errorf("%w: need 900 bits", service.ErrCapacityExceeded), http.StatusBadRequest, "CAPACITY_EXCEEDED"},
		{"invalid input", fmt.Errorf("%w: password is required", service.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"too many pixels", fmt.Errorf("%w: 9000x9000", service.ErrImageTooLarge), http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
		{"unsupported", fmt.Errorf("%w: unknown format", service.ErrUnsupportedImage), http.StatusUnsupportedMediaType, "UNSUPPORTED_IMAGE"},
		{"internal", errors.New("png encoder exploded"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range serviceErrors {
		t.Run("service error "+tt.name, func(t *testing.T) {
			mockSvc.On("Hide", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			resp, err := app.Test(multipartRequest(t, "/api/hide", cover, map[string]string{"text": "a", "password": "b"}))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, body.Error, "exploded")
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestExtract(t *testing.T) {
	mockSvc := new(serviceMocks.MockStegoService)
	app := newApp()
	app.Post("/api/extract", Extract(mockSvc, maxUpload))

	img := []byte("stego bytes")

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Extract", mock.Anything, mock.MatchedBy(func(r service.ExtractRequest) bool {
			return r.Password == "pw" && r.Location == nil && r.Image != nil
		})).Return(model.Success([]byte("hello")), nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{"password": "pw"}))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, map[string]any{"success": true, "text": "hello"}, body)
		mockSvc.AssertExpectations(t)
	})

	t.Run("requires location", func(t *testing.T) {
		mockSvc.On("Extract", mock.Anything, mock.Anything).Return(model.RequiresLocation(), nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{"password": "pw"}))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, map[string]any{"requiresLocation": true}, body)
	})

	t.Run("coordinates forwarded", func(t *testing.T) {
		mockSvc.On("Extract", mock.Anything, mock.MatchedBy(func(r service.ExtractRequest) bool {
			return r.Location != nil && r.Location.Lat == 50.0647 && r.Location.Lng == 19.945
		})).Return(model.Success([]byte("x")), nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{
			"password": "pw", "userLat": "50.0647", "userLng": "19.945",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	rejections := []struct {
		name       string
		reason     model.RejectReason
		wantStatus int
		wantCode   string
	}{
		{"not yet available", model.ReasonNotYetAvailable, http.StatusForbidden, "NOT_YET_AVAILABLE"},
		{"out of range", model.ReasonOutOfRange, http.StatusForbidden, "OUT_OF_RANGE"},
		{"invalid password", model.ReasonInvalidPassword, http.StatusBadRequest, "INVALID_PASSWORD"},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc.On("Extract", mock.Anything, mock.Anything).Return(model.Rejected(tt.reason), nil).Once()

			resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{"password": "pw"}))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeError(t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}

	t.Run("invalid password message is generic", func(t *testing.T) {
		mockSvc.On("Extract", mock.Anything, mock.Anything).Return(model.Rejected(model.ReasonInvalidPassword), nil).Once()

		resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{"password": "pw"}))
		require.NoError(t, err)
		assert.Equal(t, "invalid password or corrupted image", decodeError(t, resp).Error)
	})

	badInputs := []struct {
		name    string
		image   []byte
		fields  map[string]string
		wantMsg string
	}{
		{"no image", nil, map[string]string{"password": "pw"}, "No image provided"},
		{"no password", img, map[string]string{}, "Password is required"},
		{"only latitude", img, map[string]string{"password": "pw", "userLat": "1"}, "userLat and userLng must be sent together"},
		{"bad longitude", img, map[string]string{"password": "pw", "userLat": "1", "userLng": "east"}, "userLng must be a number"},
	}
	for _, tt := range badInputs {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(multipartRequest(t, "/api/extract", tt.image, tt.fields))
			require.NoError(t, err)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, "INVALID_INPUT", body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}

	t.Run("unsupported image", func(t *testing.T) {
		mockSvc.On("Extract", mock.Anything, mock.Anything).Return(nil, service.ErrUnsupportedImage).Once()

		resp, err := app.Test(multipartRequest(t, "/api/extract", img, map[string]string{"password": "pw"}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}

func TestListOperations(t *testing.T) {
	mockSvc := new(serviceMocks.MockStegoService)
	app := newApp()
	app.Get("/api/operations", ListOperations(mockSvc))

	t.Run("success", func(t *testing.T) {
		expected := &service.OperationListResult{
			Items: []model.Operation{{ID: uuid.NewString(), Kind: model.OperationHide, Outcome: "success"}},
			Total: 1,
		}
		mockSvc.On("ListOperations", mock.Anything, 20, 40).Return(expected, nil).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/operations?limit=20&offset=40", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result service.OperationListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/operations?limit=abc", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/operations?offset=x", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Code)
	})

	t.Run("audit disabled", func(t *testing.T) {
		mockSvc.On("ListOperations", mock.Anything, 10, 0).Return(nil, service.ErrFeatureDisabled).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/operations", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "FEATURE_DISABLED", decodeError(t, resp).Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("ListOperations", mock.Anything, 10, 0).Return(nil, errors.New("db error")).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/operations", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestGetArchive(t *testing.T) {
	mockSvc := new(serviceMocks.MockStegoService)
	app := newApp()
	app.Get("/api/archive/:id", GetArchive(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("OpenArchive", mock.Anything, id).
			Return(io.NopCloser(strings.NewReader("pngdata")), storage.ObjectInfo{Size: 7}, nil).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/archive/"+id, nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "pngdata", string(body))
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/archive/not-a-uuid", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Code)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("OpenArchive", mock.Anything, id).Return(nil, storage.ObjectInfo{}, service.ErrNotFound).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/archive/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)
	})
}

func TestDeleteArchive(t *testing.T) {
	mockSvc := new(serviceMocks.MockStegoService)
	app := newApp()
	app.Delete("/api/archive/:id", DeleteArchive(mockSvc))

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"archive disabled", service.ErrFeatureDisabled, http.StatusServiceUnavailable},
		{"backend error", errors.New("minio down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.NewString()
			mockSvc.On("DeleteArchive", mock.Anything, id).Return(tt.err).Once()

			resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/archive/"+id, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	app := newApp()
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/big", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.ErrBadRequest })

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodPost, "/boom", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"plain error", http.MethodGet, "/boom", http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"too large", http.MethodGet, "/big", http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
		{"bad request", http.MethodGet, "/bad", http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}
