// Package tagcodec stores the original content type and checksum of a
// parsed object in a single object tag, so the reverse transform can be
// driven from the infoset object alone.
package tagcodec

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"infoset_conversion/entity"
)

// TagName is the tag key holding the encoded metadata.
const TagName = "OriginalContentTypeAndETag"

const (
	fieldETag        = "ETag"
	fieldContentType = "ContentType"
	pairSeparator    = "&"
	valueSeparator   = "="
)

var ErrMalformed = errors.New("malformed original metadata")

// OriginalMetadata describes the object a transform started from.
// ETag is optional.
type OriginalMetadata struct {
	ContentType string
	ETag        string
}

// Encode renders m as base64("ETag=<etag>&ContentType=<type>"). Empty
// fields are left out.
func Encode(m OriginalMetadata) string {
	pairs := make([]string, 0, 2)
	if m.ETag != "" {
		pairs = append(pairs, fieldETag+valueSeparator+m.ETag)
	}
	if m.ContentType != "" {
		pairs = append(pairs, fieldContentType+valueSeparator+m.ContentType)
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(pairs, pairSeparator)))
}

// Decode accepts the fields in any order; missing fields stay empty and
// unknown fields are ignored.
func Decode(value string) (OriginalMetadata, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return OriginalMetadata{}, errors.Wrap(ErrMalformed, err.Error())
	}

	var m OriginalMetadata
	for _, pair := range strings.Split(string(raw), pairSeparator) {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, valueSeparator)
		if !ok {
			return OriginalMetadata{}, errors.Wrapf(ErrMalformed, "pair %q has no value", pair)
		}
		switch k {
		case fieldETag:
			m.ETag = v
		case fieldContentType:
			m.ContentType = v
		}
	}
	return m, nil
}

// Tag builds the storage tag for m.
func Tag(m OriginalMetadata) entity.Tag {
	return entity.Tag{Key: TagName, Value: Encode(m)}
}

// Find returns the raw metadata tag value. Tag keys match case-insensitively.
func Find(tags []entity.Tag) (string, bool) {
	for _, t := range tags {
		if strings.EqualFold(t.Key, TagName) {
			return t.Value, true
		}
	}
	return "", false
}

// Without returns tags minus the metadata tag, in their original order.
func Without(tags []entity.Tag) []entity.Tag {
	out := make([]entity.Tag, 0, len(tags))
	for _, t := range tags {
		if !strings.EqualFold(t.Key, TagName) {
			out = append(out, t)
		}
	}
	return out
}

// FromTags finds and decodes the metadata tag. A missing tag reports
// ok=false with a nil error; an undecodable one reports ok=false with
// the decode error.
func FromTags(tags []entity.Tag) (m OriginalMetadata, ok bool, err error) {
	value, found := Find(tags)
	if !found {
		return OriginalMetadata{}, false, nil
	}
	m, err = Decode(value)
	if err != nil {
		return OriginalMetadata{}, false, err
	}
	return m, true, nil
}
