package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stegapi/internal/repository"
	"stegapi/internal/storage"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// archive uploads the produced PNG and returns a presigned download link.
// Archiving is best effort: the caller already has the image in the response.
func (s *stegoService) archive(ctx context.Context, res *HideResult, requestID string) string {
	if s.store == nil {
		return ""
	}
	key := storage.ArchiveKey(res.OperationID)
	_, err := s.store.Put(ctx, key, bytes.NewReader(res.PNG), storage.PutObjectOptions{
		Size:        int64(len(res.PNG)),
		ContentType: "image/png",
		Metadata:    map[string]string{"request-id": requestID},
	})
	if err != nil {
		s.log.Warn("archive_put_failed",
			zap.String("request_id", requestID),
			zap.String("operation_id", res.OperationID),
			zap.Error(err),
		)
		return ""
	}
	link, err := s.store.PresignGet(ctx, key, s.urlExpiry)
	if err != nil {
		s.log.Warn("archive_presign_failed",
			zap.String("request_id", requestID),
			zap.String("operation_id", res.OperationID),
			zap.Error(err),
		)
		return ""
	}
	return link
}

// ListOperations returns paginated audit records without exposing repository types.
func (s *stegoService) ListOperations(ctx context.Context, limit, offset int) (*OperationListResult, error) {
	if s.repo == nil {
		return nil, ErrFeatureDisabled
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &OperationListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *stegoService) OpenArchive(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.store == nil {
		return nil, storage.ObjectInfo{}, ErrFeatureDisabled
	}
	if err := validateID(id); err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	rc, info, err := s.store.Get(ctx, storage.ArchiveKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("get archive: %w", err)
	}
	return rc, info, nil
}

// DeleteArchive checks the object exists first since S3 deletes of missing keys succeed silently.
func (s *stegoService) DeleteArchive(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrFeatureDisabled
	}
	if err := validateID(id); err != nil {
		return err
	}
	key := storage.ArchiveKey(id)
	if _, err := s.store.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("stat archive: %w", err)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete archive: %w", err)
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: id must be a UUID", ErrInvalidInput)
	}
	return nil
}
