package transform

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/pkg/errors"

	"infoset_conversion/entity"
	"infoset_conversion/pkg/logger"
)

// Event is the subset of an S3 event notification that is used.
type Event struct {
	Records []EventRecord `json:"Records"`
}

type EventRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Dispatcher turns object-created notifications into transform requests.
type Dispatcher struct {
	uc entity.TransformUsecase
	l  logger.Interface
}

func NewDispatcher(uc entity.TransformUsecase, l logger.Interface) *Dispatcher {
	return &Dispatcher{uc: uc, l: l}
}

// HandleEvent processes every record of the notification concurrently and
// waits for all of them. Transform failures are reported through the
// dead-letter and alert side channels, so the only error returned is for
// a body that is not a notification at all.
func (d *Dispatcher) HandleEvent(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "decode object event")
	}

	var wg sync.WaitGroup
	for _, rec := range ev.Records {
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			d.l.Warn("could not decode key %q, using it as is: %v", rec.S3.Object.Key, err)
			key = rec.S3.Object.Key
		}

		req := d.uc.Request(bucket, key)
		d.l.Info("found object %s, action %s", req.Source, req.Direction)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.uc.Process(ctx, req)
		}()
	}
	wg.Wait()

	return nil
}
