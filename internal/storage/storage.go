package storage

import (
	"context"

	"github.com/pkg/errors"

	"infoset_conversion/config"
	"infoset_conversion/entity"
	"infoset_conversion/internal/storage/miniorepo"
	"infoset_conversion/internal/storage/s3repo"
)

var ErrInvalidBackend = errors.New("invalid storage backend")

func GetStorageBackend(ctx context.Context, cfg config.Storage) (entity.StorageRepository, error) {
	var b entity.StorageRepository
	var err error

	switch cfg.Backend {
	case "s3":
		b, err = s3repo.NewS3Repository(ctx, cfg)
	case "minio":
		b, err = miniorepo.NewMinioRepository(cfg)
	default:
		return nil, errors.Wrapf(ErrInvalidBackend, "%q", cfg.Backend)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "init %s storage", cfg.Backend)
	}
	return b, nil
}
