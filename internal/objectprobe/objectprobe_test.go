package objectprobe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := &Error{Kind: KindNotFound, Err: inner}

	assert.Equal(t, "boom", e.Error())
	assert.ErrorIs(t, e, inner)
}

func TestObjectDescriptionPartLayoutDerivation(t *testing.T) {
	// Mirrors the arithmetic Probe performs once a part-1 HEAD reports a
	// parts count: last part size is whatever's left after subtracting
	// (count-1) full-size parts from the total.
	const size = uint64(3*8_388_608 + 1024)
	const partSize = uint64(8_388_608)
	const count = uint32(4)

	lastSize := size - partSize*uint64(count-1)
	assert.EqualValues(t, 1024, lastSize)
}
