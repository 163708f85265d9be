package netflowparser

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildV5Packet(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, headerSizeV5+recordSizeV5)

	binary.BigEndian.PutUint16(buf[0:2], 5)           // version
	binary.BigEndian.PutUint16(buf[2:4], 1)            // count
	binary.BigEndian.PutUint32(buf[4:8], 7_200_000)    // sys_uptime_ms
	binary.BigEndian.PutUint32(buf[8:12], 1_717_000_000) // unix_secs

	rec := buf[headerSizeV5:]
	binary.BigEndian.PutUint32(rec[0:4], 3232235777)  // 192.168.1.1
	binary.BigEndian.PutUint32(rec[4:8], 134744072)    // 8.8.8.8
	binary.BigEndian.PutUint16(rec[32:34], 54321)      // src port
	binary.BigEndian.PutUint16(rec[34:36], 53)         // dst port
	rec[38] = 17                                        // proto UDP
	binary.BigEndian.PutUint32(rec[16:20], 100)         // packets
	binary.BigEndian.PutUint32(rec[20:24], 15000)       // octets
	binary.BigEndian.PutUint32(rec[24:28], 7_190_000)   // first_switched
	binary.BigEndian.PutUint32(rec[28:32], 7_195_000)   // last_switched

	return buf
}

func TestParseV5_TimeReconstruction(t *testing.T) {
	data := buildV5Packet(t)
	records, err := ParseV5(data, "192.168.88.1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "192.168.1.1", r.SrcAddr.String())
	assert.Equal(t, "8.8.8.8", r.DstAddr.String())
	assert.EqualValues(t, 17, r.Protocol)
	assert.EqualValues(t, 15000, r.Octets)
	assert.EqualValues(t, 5000, r.FlowDurationMs)
	assert.EqualValues(t, 1_716_999_995_000, r.EventTimeMs)
}

func TestParseV5_ShortPacket(t *testing.T) {
	_, err := ParseV5([]byte{1, 2, 3}, "1.2.3.4")
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestParseV5_WrongVersion(t *testing.T) {
	data := make([]byte, headerSizeV5)
	binary.BigEndian.PutUint16(data[0:2], 9)
	_, err := ParseV5(data, "1.2.3.4")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
