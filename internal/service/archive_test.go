package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stegapi/internal/model"
	"stegapi/internal/repository"
	repoMocks "stegapi/internal/repository/mocks"
	"stegapi/internal/storage"
	storeMocks "stegapi/internal/storage/mocks"
)

const archiveID = "5f0c6a2e-8a57-4c43-9a38-2d6a3f3f1b11"

func TestStegoService_HideArchives(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(mStore *storeMocks.MockStorage)
		wantURL    string
	}{
		{
			name: "archived with link",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "stego/") && strings.HasSuffix(key, ".png")
				}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
					return opt.ContentType == "image/png" && opt.Size > 0 && opt.Metadata["request-id"] == "req-a"
				})).Return(storage.ObjectInfo{}, nil)
				mStore.On("PresignGet", mock.Anything, mock.Anything, 5*time.Minute).
					Return("https://minio.local/stego/x.png?sig", nil)
			},
			wantURL: "https://minio.local/stego/x.png?sig",
		},
		{
			name: "put failure is tolerated",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("bucket gone"))
			},
		},
		{
			name: "presign failure is tolerated",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, nil)
				mStore.On("PresignGet", mock.Anything, mock.Anything, mock.Anything).
					Return("", errors.New("no credentials"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			tt.setupMocks(mStore)
			svc, _ := newTestService(t, WithArchive(mStore, 5*time.Minute))

			res := hide(t, svc, HideRequest{Text: "x", RequestID: "req-a"})
			assert.Equal(t, tt.wantURL, res.DownloadURL)
			assert.NotEmpty(t, res.PNG)
			mStore.AssertExpectations(t)
		})
	}
}

func TestStegoService_ListOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.ListOperations(ctx, 10, 0)
		assert.ErrorIs(t, err, ErrFeatureDisabled)
	})

	tests := []struct {
		name          string
		limit, offset int
		wantQuery     repository.PageQuery
	}{
		{"defaults", 0, -5, repository.PageQuery{Limit: 10, Offset: 0}},
		{"clamped", 1000, 20, repository.PageQuery{Limit: 100, Offset: 20}},
		{"as given", 25, 50, repository.PageQuery{Limit: 25, Offset: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockOperationRepository)
			mRepo.On("List", ctx, tt.wantQuery).Return(&repository.PageResult[model.Operation]{
				Items: []model.Operation{{ID: "op-1", Kind: model.OperationHide}},
				Total: 1,
			}, nil)
			svc, _ := newTestService(t, WithOperationRepository(mRepo))

			res, err := svc.ListOperations(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Total)
			assert.Equal(t, "op-1", res.Items[0].ID)
			mRepo.AssertExpectations(t)
		})
	}

	t.Run("repository error", func(t *testing.T) {
		mRepo := new(repoMocks.MockOperationRepository)
		mRepo.On("List", ctx, mock.Anything).Return(nil, errors.New("db error"))
		svc, _ := newTestService(t, WithOperationRepository(mRepo))

		_, err := svc.ListOperations(ctx, 10, 0)
		assert.EqualError(t, err, "db error")
	})
}

func TestStegoService_OpenArchive(t *testing.T) {
	ctx := context.Background()
	key := storage.ArchiveKey(archiveID)

	tests := []struct {
		name       string
		id         string
		setupMocks func(mStore *storeMocks.MockStorage)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "happy path",
			id:   archiveID,
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Get", ctx, key).Return(io.NopCloser(strings.NewReader("png")), storage.ObjectInfo{Key: key, Size: 3}, nil)
			},
		},
		{name: "empty id", id: "", wantErr: ErrInvalidInput},
		{name: "malformed id", id: "../etc/passwd", wantErr: ErrInvalidInput},
		{
			name: "not found",
			id:   archiveID,
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Get", ctx, key).Return(nil, storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "backend error",
			id:   archiveID,
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Get", ctx, key).Return(nil, storage.ObjectInfo{}, errors.New("timeout"))
			},
			wantErrMsg: "get archive: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			if tt.setupMocks != nil {
				tt.setupMocks(mStore)
			}
			svc, _ := newTestService(t, WithArchive(mStore, time.Minute))

			rc, info, err := svc.OpenArchive(ctx, tt.id)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rc)
			case tt.wantErrMsg != "":
				assert.EqualError(t, err, tt.wantErrMsg)
			default:
				require.NoError(t, err)
				body, _ := io.ReadAll(rc)
				assert.Equal(t, "png", string(body))
				assert.Equal(t, int64(3), info.Size)
			}
			mStore.AssertExpectations(t)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, _, err := svc.OpenArchive(ctx, archiveID)
		assert.ErrorIs(t, err, ErrFeatureDisabled)
	})
}

func TestStegoService_DeleteArchive(t *testing.T) {
	ctx := context.Background()
	key := storage.ArchiveKey(archiveID)

	tests := []struct {
		name       string
		setupMocks func(mStore *storeMocks.MockStorage)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "happy path",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Stat", ctx, key).Return(storage.ObjectInfo{Key: key}, nil)
				mStore.On("Delete", ctx, key).Return(nil)
			},
		},
		{
			name: "not found",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Stat", ctx, key).Return(storage.ObjectInfo{}, storage.ErrObjectNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "stat error",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Stat", ctx, key).Return(storage.ObjectInfo{}, errors.New("refused"))
			},
			wantErrMsg: "stat archive: refused",
		},
		{
			name: "delete error",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Stat", ctx, key).Return(storage.ObjectInfo{Key: key}, nil)
				mStore.On("Delete", ctx, key).Return(errors.New("locked"))
			},
			wantErrMsg: "delete archive: locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			tt.setupMocks(mStore)
			svc, _ := newTestService(t, WithArchive(mStore, time.Minute))

			err := svc.DeleteArchive(ctx, archiveID)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				assert.EqualError(t, err, tt.wantErrMsg)
			default:
				assert.NoError(t, err)
			}
			mStore.AssertExpectations(t)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.DeleteArchive(ctx, archiveID), ErrFeatureDisabled)
	})
}
