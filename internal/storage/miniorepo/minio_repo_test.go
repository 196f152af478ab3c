package miniorepo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"infoset_conversion/entity"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "", quote(""))
	assert.Equal(t, `"abc"`, quote("abc"))
	assert.Equal(t, `"abc-2"`, quote(`"abc-2"`))
}

func TestPutOptions(t *testing.T) {
	opts := putOptions(entity.PutOptions{
		ContentType: "application/xml",
		Tags:        []entity.Tag{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
	})
	assert.Equal(t, "application/xml", opts.ContentType)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, opts.UserTags)

	assert.Nil(t, putOptions(entity.PutOptions{}).UserTags)
}
