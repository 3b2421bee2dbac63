package xid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("tx")
	b := New("tx")
	assert.True(t, strings.HasPrefix(a, "tx-"))
	assert.NotEqual(t, a, b)
}

func TestNumberEmbedsTimestamp(t *testing.T) {
	at := time.UnixMilli(1760860800123)
	n := Number("TRF", at)
	assert.True(t, strings.HasPrefix(n, "TRF-1760860800123-"), n)
	assert.Len(t, strings.TrimPrefix(n, "TRF-1760860800123-"), 4)
}
