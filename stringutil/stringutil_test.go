package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortenLog(t *testing.T) {
	assert.Equal(t, "alice", ShortenLog("alice"))
	assert.Equal(t, "0123456789abcdef", ShortenLog("0123456789abcdef"))
	assert.Equal(t, "01234567...89abcdef", ShortenLog("01234567XXXXXXXX89abcdef"))
}
