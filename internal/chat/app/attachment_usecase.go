package app

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	errprocess "group_chat_client/pkg/err"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AttachmentUseCase issue presigned upload / download urls
type AttachmentUseCase struct {
	store    repository.AttachmentStore
	identity repository.IdentityProvider
	expiry   time.Duration
	now      func() time.Time
}

// NewAttachmentUseCase create AttachmentUseCase
func NewAttachmentUseCase(store repository.AttachmentStore, identity repository.IdentityProvider, expiry time.Duration) *AttachmentUseCase {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &AttachmentUseCase{store: store, identity: identity, expiry: expiry, now: time.Now}
}

// PresignUpload reserve an object key and return a url the client PUTs the file to
func (uc *AttachmentUseCase) PresignUpload(ctx context.Context, contentType, originalFileName string, size int64) (domain.UploadTicket, error) {
	ident := uc.identity.CurrentIdentity()
	if ident == nil {
		return domain.UploadTicket{}, errprocess.ErrUnauthenticated
	}
	if strings.TrimSpace(contentType) == "" {
		return domain.UploadTicket{}, errprocess.Wrap(errprocess.ErrInvalidArgument, errors.New("content type is required"))
	}

	key := "attachments/" + ident.ID + "/" + uuid.New().String() + strings.ToLower(filepath.Ext(originalFileName))
	url, err := uc.store.PresignPut(ctx, key, uc.expiry)
	if err != nil {
		return domain.UploadTicket{}, err
	}

	now := uc.now()
	return domain.UploadTicket{
		URL:       url,
		ExpiresAt: now.Add(uc.expiry),
		Attachment: domain.Attachment{
			Bucket:           uc.store.Bucket(),
			Key:              key,
			ContentType:      contentType,
			OriginalFileName: originalFileName,
			Size:             size,
			UploadedAt:       now,
		},
	}, nil
}

// PresignDownload url to GET key
func (uc *AttachmentUseCase) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	if uc.identity.CurrentIdentity() == nil {
		return "", time.Time{}, errprocess.ErrUnauthenticated
	}
	if key == "" {
		return "", time.Time{}, errprocess.ErrInvalidArgument
	}

	url, err := uc.store.PresignGet(ctx, key, uc.expiry)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, uc.now().Add(uc.expiry), nil
}
