package storage

import (
	"commentary/api/internal/minio"
	sharedstorage "commentary/shared/storage"
)

// Service is an alias to the shared storage service.
type Service = sharedstorage.Service

// ObjectStorage re-exports the shared object storage interface.
type ObjectStorage = sharedstorage.ObjectStorage

// Option re-exports the shared storage options.
type Option = sharedstorage.Option

// WithHostOverride re-exports the shared host override option.
var WithHostOverride = sharedstorage.WithHostOverride

// New creates a new storage service using the shared implementation.
func New(client *minio.Client, opts ...sharedstorage.Option) *Service {
	return sharedstorage.New(client, opts...)
}
