package transform

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"gorm.io/gorm"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

// JournalRepository keeps one row per settled request.
type JournalRepository struct {
	db *gorm.DB
	l  logger.Interface
}

var _ entity.Journal = (*JournalRepository)(nil)

func NewJournalRepository(db *gorm.DB, l logger.Interface) (*JournalRepository, error) {
	if err := db.AutoMigrate(&entity.TransformRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate transform journal")
	}
	return &JournalRepository{db: db, l: l}, nil
}

// keyHash is the indexed digest of an object key.
func keyHash(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (jr *JournalRepository) Record(ctx context.Context, rec entity.TransformRecord) error {
	rec.KeyHash = keyHash(rec.Key)
	if err := jr.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert transform record")
	}
	return nil
}

// History returns the latest records for one object, newest first.
func (jr *JournalRepository) History(ctx context.Context, bucket, key string, limit int) ([]entity.TransformRecord, error) {
	var recs []entity.TransformRecord
	err := jr.db.WithContext(ctx).
		Where("bucket = ? AND key_hash = ? AND `key` = ?", bucket, keyHash(key), key).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "query transform records")
	}
	return recs, nil
}
