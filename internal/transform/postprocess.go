package transform

import (
	"context"
	"fmt"
	"strings"

	"infoset_conversion/entity"
)

const alertSubject = "Infoset Transform Error"

// moveQuietly copies src into bucket under the same key and then deletes
// src. It reports whether the copy landed; a failed delete is only logged.
func (u *TransformUsecase) moveQuietly(ctx context.Context, src entity.Location, bucket string) bool {
	dst := entity.Location{Bucket: bucket, Key: src.Key}

	if err := u.StorageRepo.CopyObject(ctx, src, dst); err != nil {
		u.l.Warn("error occurred while moving %s to %s: %v", src, dst, err)
		return false
	}
	if err := u.StorageRepo.DeleteObject(ctx, src.Bucket, src.Key); err != nil {
		u.l.Warn("copied %s to %s but could not delete the source: %v", src, dst, err)
		return true
	}
	u.l.Info("moved %s to %s", src, dst)
	return true
}

func (u *TransformUsecase) onSuccess(ctx context.Context, src entity.Location) {
	if u.cfg.ArchiveEnabled() {
		u.l.Info("archiving %s to bucket %s", src, u.cfg.ArchiveBucket)
		u.moveQuietly(ctx, src, u.cfg.ArchiveBucket)
		return
	}

	u.l.Info("no archive bucket defined, deleting object %s", src)
	if err := u.StorageRepo.DeleteObject(ctx, src.Bucket, src.Key); err != nil {
		u.l.Warn("error deleting %s: %v", src, err)
		return
	}
	u.l.Info("deleted %s", src)
}

func (u *TransformUsecase) onFailure(ctx context.Context, src entity.Location, cause error) {
	moved := false
	if u.cfg.DeadLetterEnabled() {
		u.l.Info("moving failed object %s to dead-letter bucket %s", src, u.cfg.DeadLetterBucket)
		moved = u.moveQuietly(ctx, src, u.cfg.DeadLetterBucket)
	}

	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, alertSubject, u.alertMessage(src, moved, cause)); err != nil {
		u.l.Warn("could not send error notification for %s: %v", src, err)
	}
}

func (u *TransformUsecase) alertMessage(src entity.Location, moved bool, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "An error occurred while performing the infoset transform for %s\n", src)
	if moved {
		fmt.Fprintf(&b, "The file was moved to %s\n", entity.Location{Bucket: u.cfg.DeadLetterBucket, Key: src.Key})
	}
	fmt.Fprintf(&b, "Error: %v", cause)
	return b.String()
}
