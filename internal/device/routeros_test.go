package device

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLengthRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 127, 128, 200, 16383, 16384, 100000, 2097151, 2097152}
	for _, l := range lengths {
		encoded := encodeLength(l)
		got, err := decodeLength(bufio.NewReader(bytes.NewReader(encoded)))
		require.NoError(t, err)
		assert.Equal(t, l, got, "length %d", l)
	}
}

func TestSplitAttrWord(t *testing.T) {
	k, v := splitAttrWord("=name=ether1")
	assert.Equal(t, "name", k)
	assert.Equal(t, "ether1", v)

	k, v = splitAttrWord("=comment=")
	assert.Equal(t, "comment", k)
	assert.Equal(t, "", v)

	k, v = splitAttrWord("!done")
	assert.Equal(t, "!done", k)
	assert.Equal(t, "", v)
}

func TestWriteReadSentenceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	conn := &fakeConn{buf: &buf}
	tr := &apiTransport{conn: conn, r: bufio.NewReader(&buf)}

	require.NoError(t, tr.writeSentence("/system/identity/print", attrWord("name", "router1")))
	words, err := tr.readSentence()
	require.NoError(t, err)
	assert.Equal(t, []string{"/system/identity/print", "=name=router1"}, words)
}

// fakeConn backs apiTransport with an in-memory buffer for write/read tests
// that don't need a live socket.
type fakeConn struct{ buf *bytes.Buffer }

func (f *fakeConn) Read(p []byte) (int, error)       { return f.buf.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error)      { return f.buf.Write(p) }
func (f *fakeConn) Close() error                     { return nil }
func (f *fakeConn) LocalAddr() net.Addr              { return nil }
func (f *fakeConn) RemoteAddr() net.Addr             { return nil }
func (f *fakeConn) SetDeadline(t time.Time) error    { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
