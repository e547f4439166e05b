package repository

import (
	"context"
	"time"

	"group_chat_client/pkg/database"
)

type minioAttachmentStore struct {
	client *database.MinIOClient
}

// NewMinIOAttachmentStore create the presigner backed by minio
func NewMinIOAttachmentStore(client *database.MinIOClient) AttachmentStore {
	return &minioAttachmentStore{client: client}
}

func (s *minioAttachmentStore) Bucket() string {
	return s.client.BucketName
}

func (s *minioAttachmentStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.client.PresignPutURL(ctx, key, expiry)
}

func (s *minioAttachmentStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.client.PresignGetURL(ctx, key, expiry)
}
