package supervisor

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBufferNewestFirst(t *testing.T) {
	var b tailBuffer
	for i := 1; i <= 5; i++ {
		b.Append(strconv.Itoa(i))
	}
	assert.Equal(t, []string{"5", "4", "3"}, b.Tail(3))
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, b.Tail(0))
}

func TestTailBufferWrapAround(t *testing.T) {
	var b tailBuffer
	for i := 1; i <= tailBufferSize+6; i++ {
		b.Append(strconv.Itoa(i))
	}
	assert.Equal(t,
		[]string{strconv.Itoa(tailBufferSize + 6), strconv.Itoa(tailBufferSize + 5)},
		b.Tail(2))
	assert.Len(t, b.Tail(0), tailBufferSize)
}

func TestTailBufferReset(t *testing.T) {
	var b tailBuffer
	b.Append("x")
	b.Reset()
	assert.Nil(t, b.Tail(0))
}
