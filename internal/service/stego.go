package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"stegapi/internal/codec"
	"stegapi/internal/config"
	"stegapi/internal/crypt"
	"stegapi/internal/envelope"
	"stegapi/internal/gate"
	"stegapi/internal/model"
	"stegapi/internal/repository"
	"stegapi/internal/storage"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrCapacityExceeded = errors.New("message is too long for this image")
	ErrImageTooLarge    = codec.ErrImageTooLarge
	ErrUnsupportedImage = codec.ErrUnsupportedImage
	ErrFeatureDisabled  = errors.New("feature is not configured")
	ErrNotFound         = errors.New("archive not found")
)

// Extraction failure kinds. They are logged and counted but never returned to callers,
// who only ever see model.ReasonInvalidPassword.
const (
	failureCorruptImage    = "corrupt_image"
	failureCorruptEnvelope = "corrupt_envelope"
	failureAuth            = "auth_failure"
)

var tracer = otel.Tracer("stegapi/internal/service")

// HideRequest carries the inputs of one Hide call.
type HideRequest struct {
	Image    io.Reader
	Text     string
	Password string
	// Delay enables the time lock; the secret becomes available Delay after the call.
	Delay *time.Duration
	// Location enables the geofence centred on these coordinates.
	Location  *model.Coordinates
	RequestID string
}

// HideResult is the produced stego image plus bookkeeping about it.
type HideResult struct {
	PNG           []byte
	OperationID   string
	DownloadURL   string
	Width         int
	Height        int
	EnvelopeBytes int
	Policy        model.ReleasePolicy
}

// ExtractRequest carries the inputs of one Extract call.
type ExtractRequest struct {
	Image     io.Reader
	Password  string
	Location  *model.Coordinates
	RequestID string
}

// OperationListResult is the service-level DTO for the paginated audit trail.
type OperationListResult struct {
	Items []model.Operation `json:"data"`
	Total int               `json:"total"`
}

// StegoService defines the hide/extract use cases and the optional audit and archive views.
type StegoService interface {
	// Hide encrypts the text, wraps it with its release policy and embeds it into the image.
	Hide(ctx context.Context, req HideRequest) (*HideResult, error)

	// Extract reads the envelope from the image, checks the release policy and decrypts.
	// Policy and password failures come back as a Rejected result, not an error.
	Extract(ctx context.Context, req ExtractRequest) (*model.ExtractionResult, error)

	// ListOperations returns audit records newest first.
	ListOperations(ctx context.Context, limit, offset int) (*OperationListResult, error)

	// OpenArchive streams an archived stego image.
	OpenArchive(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error)

	// DeleteArchive removes an archived stego image.
	DeleteArchive(ctx context.Context, id string) error
}

// Option customizes a stegoService.
type Option func(*stegoService)

// WithClock replaces time.Now, used for time lock evaluation and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *stegoService) { s.now = now }
}

// WithRand replaces the salt/nonce source.
func WithRand(r io.Reader) Option {
	return func(s *stegoService) { s.rand = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *stegoService) { s.log = l }
}

// WithMetrics enables domain counters.
func WithMetrics(m *Metrics) Option {
	return func(s *stegoService) { s.metrics = m }
}

// WithOperationRepository enables the audit trail.
func WithOperationRepository(repo repository.OperationRepository) Option {
	return func(s *stegoService) { s.repo = repo }
}

// WithArchive enables archiving produced images; links to them expire after urlExpiry.
func WithArchive(store storage.Storage, urlExpiry time.Duration) Option {
	return func(s *stegoService) {
		s.store = store
		s.urlExpiry = urlExpiry
	}
}

type stegoService struct {
	params       crypt.Params
	maxPixels    int
	radiusMeters float64
	slots        *semaphore.Weighted

	now     func() time.Time
	rand    io.Reader
	log     *zap.Logger
	metrics *Metrics

	repo      repository.OperationRepository
	store     storage.Storage
	urlExpiry time.Duration
}

// NewStegoService constructs a StegoService from the engine configuration.
func NewStegoService(cfg config.StegoConfig, opts ...Option) (StegoService, error) {
	params, err := kdfParams(cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("kdf config: %w", err)
	}
	if cfg.GeofenceRadiusMeters <= 0 {
		return nil, fmt.Errorf("geofence radius must be positive, got %v", cfg.GeofenceRadiusMeters)
	}
	workers := cfg.KDF.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &stegoService{
		params:       params,
		maxPixels:    cfg.MaxImagePixels,
		radiusMeters: cfg.GeofenceRadiusMeters,
		slots:        semaphore.NewWeighted(int64(workers)),
		now:          time.Now,
		log:          zap.NewNop(),
		urlExpiry:    15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// kdfParams range-checks the configured ints before narrowing them, so an
// out-of-range value is an error instead of a wrapped cost.
func kdfParams(c config.KDFConfig) (crypt.Params, error) {
	limit := crypt.MaxParams
	switch {
	case c.Time < 1 || c.Time > int(limit.Time):
		return crypt.Params{}, fmt.Errorf("time %d out of range [1, %d]", c.Time, limit.Time)
	case c.MemoryKiB < 1 || c.MemoryKiB > int(limit.MemoryKiB):
		return crypt.Params{}, fmt.Errorf("memory %d KiB out of range [1, %d]", c.MemoryKiB, limit.MemoryKiB)
	case c.Threads < 1 || c.Threads > int(limit.Threads):
		return crypt.Params{}, fmt.Errorf("threads %d out of range [1, %d]", c.Threads, limit.Threads)
	}
	p := crypt.Params{
		Time:      uint32(c.Time),
		MemoryKiB: uint32(c.MemoryKiB),
		Threads:   uint8(c.Threads),
	}
	return p, p.Validate()
}

func (s *stegoService) Hide(ctx context.Context, req HideRequest) (*HideResult, error) {
	ctx, span := tracer.Start(ctx, "stego.hide")
	defer span.End()

	res, err := s.hide(ctx, req)
	if err != nil {
		s.metrics.operation(model.OperationHide, hideOutcome(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, hideOutcome(err))
		return nil, err
	}
	s.metrics.operation(model.OperationHide, "success")
	span.SetAttributes(
		attribute.Int("stego.envelope_bytes", res.EnvelopeBytes),
		attribute.Bool("stego.time_locked", res.Policy.NotBefore != nil),
		attribute.Bool("stego.geo_locked", res.Policy.Geofence != nil),
	)
	return res, nil
}

func (s *stegoService) hide(ctx context.Context, req HideRequest) (*HideResult, error) {
	switch {
	case req.Image == nil:
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	case req.Text == "":
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	case req.Password == "":
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	case req.Delay != nil && *req.Delay < 0:
		return nil, fmt.Errorf("%w: time lock offset must not be negative", ErrInvalidInput)
	case req.Location != nil && !req.Location.Valid():
		return nil, fmt.Errorf("%w: location coordinates are out of range", ErrInvalidInput)
	}

	img, format, err := codec.Decode(req.Image, s.maxPixels)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("image.format", format),
		attribute.Int("image.width", b.Dx()),
		attribute.Int("image.height", b.Dy()),
	)

	policy := s.policy(req)
	plaintext := []byte(req.Text)

	// Reject oversize payloads before paying for key derivation.
	need := envelope.Size(policy, len(plaintext)) * 8
	if capacity := codec.Capacity(img); need > capacity {
		return nil, fmt.Errorf("%w: need %d bits, image holds %d", ErrCapacityExceeded, need, capacity)
	}

	var sealed *crypt.Sealed
	err = s.withKDFSlot(ctx, func() error {
		var sealErr error
		sealer := crypt.Sealer{Params: s.params, Rand: s.rand}
		sealed, sealErr = sealer.Seal(plaintext, []byte(req.Password), envelope.AssociatedData(policy))
		return sealErr
	})
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}

	raw, err := envelope.Marshal(&envelope.Envelope{Policy: policy, Sealed: *sealed})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	stego, err := codec.Embed(img, raw)
	if err != nil {
		if errors.Is(err, codec.ErrCapacityExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
		}
		return nil, fmt.Errorf("embed envelope: %w", err)
	}

	var buf bytes.Buffer
	if err := codec.EncodePNG(&buf, stego); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	res := &HideResult{
		PNG:           buf.Bytes(),
		OperationID:   uuid.NewString(),
		Width:         b.Dx(),
		Height:        b.Dy(),
		EnvelopeBytes: len(raw),
		Policy:        policy,
	}
	res.DownloadURL = s.archive(ctx, res, req.RequestID)
	s.record(ctx, &model.Operation{
		ID:            res.OperationID,
		Kind:          model.OperationHide,
		Outcome:       "success",
		RequestID:     req.RequestID,
		Width:         res.Width,
		Height:        res.Height,
		EnvelopeBytes: res.EnvelopeBytes,
		TimeLocked:    policy.NotBefore != nil,
		GeoLocked:     policy.Geofence != nil,
	})

	s.log.Info("stego_hide",
		zap.String("request_id", req.RequestID),
		zap.String("operation_id", res.OperationID),
		zap.String("format", format),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.Int("envelope_bytes", res.EnvelopeBytes),
		zap.Bool("time_locked", policy.NotBefore != nil),
		zap.Bool("geo_locked", policy.Geofence != nil),
	)
	return res, nil
}

func (s *stegoService) policy(req HideRequest) model.ReleasePolicy {
	var p model.ReleasePolicy
	if req.Delay != nil {
		nb := s.now().Add(*req.Delay).UTC().Truncate(time.Millisecond)
		p.NotBefore = &nb
	}
	if req.Location != nil {
		p.Geofence = &model.Geofence{Center: *req.Location, RadiusMeters: s.radiusMeters}
	}
	return p
}

func (s *stegoService) Extract(ctx context.Context, req ExtractRequest) (*model.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "stego.extract")
	defer span.End()

	switch {
	case req.Image == nil:
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	case req.Password == "":
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	case req.Location != nil && !req.Location.Valid():
		return nil, fmt.Errorf("%w: location coordinates are out of range", ErrInvalidInput)
	}

	img, _, err := codec.Decode(req.Image, s.maxPixels)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	b := img.Bounds()
	op := &model.Operation{
		ID:        uuid.NewString(),
		Kind:      model.OperationExtract,
		RequestID: req.RequestID,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}

	raw, err := codec.Extract(img)
	if err != nil {
		return s.rejectCorrupt(ctx, op, failureCorruptImage, err), nil
	}
	op.EnvelopeBytes = len(raw)

	env, err := envelope.Unmarshal(raw)
	if err != nil {
		return s.rejectCorrupt(ctx, op, failureCorruptEnvelope, err), nil
	}
	op.TimeLocked = env.Policy.NotBefore != nil
	op.GeoLocked = env.Policy.Geofence != nil

	decision := gate.Evaluate(env.Policy, s.now(), req.Location)
	span.SetAttributes(attribute.String("stego.gate", decision.Outcome.String()))
	switch decision.Outcome {
	case gate.RequiresLocation:
		return s.finishExtract(ctx, op, model.RequiresLocation()), nil
	case gate.Rejected:
		return s.finishExtract(ctx, op, model.Rejected(decision.Reason)), nil
	}

	var plaintext []byte
	err = s.withKDFSlot(ctx, func() error {
		var openErr error
		plaintext, openErr = crypt.Open(&env.Sealed, []byte(req.Password), envelope.AssociatedData(env.Policy))
		return openErr
	})
	if err != nil {
		if errors.Is(err, crypt.ErrAuthFailure) {
			return s.rejectCorrupt(ctx, op, failureAuth, err), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "kdf")
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return s.finishExtract(ctx, op, model.Success(plaintext)), nil
}

// rejectCorrupt logs the internal failure kind and collapses it into the generic rejection.
func (s *stegoService) rejectCorrupt(ctx context.Context, op *model.Operation, kind string, err error) *model.ExtractionResult {
	s.metrics.extractFailure(kind)
	s.log.Info("stego_extract_failed",
		zap.String("request_id", op.RequestID),
		zap.String("kind", kind),
		zap.Error(err),
	)
	return s.finishExtract(ctx, op, model.Rejected(model.ReasonInvalidPassword))
}

func (s *stegoService) finishExtract(ctx context.Context, op *model.Operation, res *model.ExtractionResult) *model.ExtractionResult {
	op.Outcome = extractOutcome(res)
	s.metrics.operation(model.OperationExtract, op.Outcome)
	s.record(ctx, op)
	s.log.Info("stego_extract",
		zap.String("request_id", op.RequestID),
		zap.String("operation_id", op.ID),
		zap.String("outcome", op.Outcome),
		zap.Bool("time_locked", op.TimeLocked),
		zap.Bool("geo_locked", op.GeoLocked),
	)
	return res
}

// withKDFSlot runs fn while holding one of the bounded key derivation slots.
func (s *stegoService) withKDFSlot(ctx context.Context, fn func() error) error {
	ctx, span := tracer.Start(ctx, "stego.kdf")
	defer span.End()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire kdf slot: %w", err)
	}
	defer s.slots.Release(1)
	return fn()
}

// record stores an audit entry. Failures are logged and never fail the request.
func (s *stegoService) record(ctx context.Context, op *model.Operation) {
	if s.repo == nil {
		return
	}
	op.CreatedAt = s.now().UTC()
	if _, err := s.repo.Create(ctx, op); err != nil {
		s.log.Warn("audit_record_failed",
			zap.String("request_id", op.RequestID),
			zap.String("operation_id", op.ID),
			zap.Error(err),
		)
	}
}

func hideOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrImageTooLarge):
		return "image_too_large"
	case errors.Is(err, ErrUnsupportedImage):
		return "unsupported_image"
	default:
		return "error"
	}
}

func extractOutcome(res *model.ExtractionResult) string {
	if res.Status == model.StatusRejected {
		return string(res.Reason)
	}
	return string(res.Status)
}
