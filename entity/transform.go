package entity

import (
	"context"
	"time"
)

// Direction selects which codec operation a request runs.
type Direction int

const (
	// Forward parses a binary object into its XML infoset.
	Forward Direction = iota
	// Reverse unparses an infoset back into the original encoding.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "Unparse"
	}
	return "Parse"
}

type TransformRequest struct {
	Source    Location
	Direction Direction
}

type TransformUsecase interface {
	Process(ctx context.Context, req TransformRequest) error
	Request(bucket, key string) TransformRequest
}

// TransformRecord is one settled request as kept by the journal. Keys are
// looked up through KeyHash, a hex digest of Key, so the index stays
// within the InnoDB key length limit.
type TransformRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Bucket      string `gorm:"size:255;index:idx_source,priority:1"`
	KeyHash     string `gorm:"size:64;index:idx_source,priority:2"`
	Key         string `gorm:"size:1024"`
	Direction   string `gorm:"size:16"`
	ContentType string `gorm:"size:255"`
	Status      string `gorm:"size:16"`
	Error       string `gorm:"type:text"`
	DurationMs  int64
	CreatedAt   time.Time
}

const (
	StatusSucceeded = "SUCCESS"
	StatusFailed    = "FAILED"
)

type Journal interface {
	Record(ctx context.Context, rec TransformRecord) error
}

// Notifier publishes human-readable alerts.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}
