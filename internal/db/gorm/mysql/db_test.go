package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"infoset_conversion/config"
)

func TestNewDBRejectsBadDSN(t *testing.T) {
	_, err := NewDB(config.Journal{DSN: "not a dsn"})
	assert.Error(t, err)
}
