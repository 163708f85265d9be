package normalize

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/model"
	"netedge-siem/internal/netflowparser"
	"netedge-siem/internal/syslogparser"
)

func TestSyslog_FirewallDrop(t *testing.T) {
	line := "<78>May 31 10:10:32 MikrotikRouter firewall,info: input: in:ether1 out:(none), src-mac 00:0c:29:11:22:33, proto TCP (SYN), 192.168.1.100:12345->192.168.88.1:80, len 52"
	received := time.Date(2026, 5, 31, 10, 10, 33, 0, time.UTC)

	p, ok := syslogparser.Parse(line, "192.168.88.1", 514, received)
	require.True(t, ok)

	e := Syslog(p, received)
	assert.Equal(t, model.CategoryFirewall, e.EventCategory)
	assert.Equal(t, "denied", e.EventAction)
	assert.Equal(t, model.OutcomeFailure, e.EventOutcome)
	assert.Equal(t, "192.168.1.100", e.SourceIP)
	assert.Equal(t, "192.168.88.1", e.DestinationIP)
	assert.Equal(t, 9, e.SyslogFacility)
	assert.Equal(t, 6, e.SyslogSeverityCode)
}

func TestNetflowV5_TimeAndFields(t *testing.T) {
	r := netflowparser.RecordV5{
		ExporterIP:      "192.168.88.1",
		SrcAddr:         net.ParseIP("192.168.1.1"),
		DstAddr:         net.ParseIP("8.8.8.8"),
		SrcPort:         54321,
		DstPort:         53,
		Protocol:        17,
		Packets:         100,
		Octets:          15000,
		FirstSwitchedMs: 7_190_000,
		LastSwitchedMs:  7_195_000,
	}
	r.FlowDurationMs = int64(r.LastSwitchedMs) - int64(r.FirstSwitchedMs)
	r.EventTimeMs = 1_717_000_000*1000 + (int64(r.LastSwitchedMs) - 7_200_000)
	r.FlowStartTimeMs = 1_717_000_000*1000 + (int64(r.FirstSwitchedMs) - 7_200_000)

	e := NetflowV5(r, 2055, time.Now().UTC())
	assert.Equal(t, "192.168.1.1", e.SourceIP)
	assert.Equal(t, "8.8.8.8", e.DestinationIP)
	assert.Equal(t, "UDP", e.NetworkProtocol)
	assert.EqualValues(t, 15000, e.NetworkBytesTotal)
	assert.EqualValues(t, 5000, e.FlowDurationMs)
	assert.EqualValues(t, 1_716_999_995_000, e.Timestamp.UnixMilli())
}
