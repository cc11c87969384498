package tcpreactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendRetrieveRoundTrip(t *testing.T) {
	b := NewBuffer()
	data := []byte("Hello, Server!")
	b.Append(data)
	require.Equal(t, len(data), b.ReadableBytes())

	got := b.RetrieveAsString(len(data))
	require.Equal(t, string(data), got)
	require.Equal(t, 0, b.ReadableBytes())
}

func TestBufferInvariantsHoldAfterOperations(t *testing.T) {
	b := NewBuffer()
	checkInvariant := func() {
		require.GreaterOrEqual(t, b.reader, 0)
		require.LessOrEqual(t, b.reader, b.writer)
		require.LessOrEqual(t, b.writer, len(b.buf))
	}
	checkInvariant()

	b.Append(make([]byte, 4096))
	checkInvariant()

	b.Retrieve(100)
	checkInvariant()

	b.Append(make([]byte, 10))
	checkInvariant()

	b.RetrieveAll()
	checkInvariant()
	require.Equal(t, 0, b.ReadableBytes())
}

func TestBufferGrowsBeyondInitialCapacity(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, 100*1024)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	require.Equal(t, len(big), b.ReadableBytes())
	require.Equal(t, big, []byte(b.Peek()))
}

func TestBufferPrependReclaimsReservedSpace(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("payload"))
	header := []byte{0, 0, 0, 7}
	b.Prepend(header)
	require.Equal(t, "\x00\x00\x00\x07payload", b.RetrieveAllAsString())
}
