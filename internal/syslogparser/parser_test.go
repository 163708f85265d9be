package syslogparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RFC3164WithTag(t *testing.T) {
	line := "<78>May 31 10:10:32 MikrotikRouter firewall,info: input: in:ether1 out:(none), src-mac 00:0c:29:11:22:33, proto TCP (SYN), 192.168.1.100:12345->192.168.88.1:80, len 52"
	received := time.Date(2026, 5, 31, 10, 10, 33, 0, time.UTC)

	p, ok := Parse(line, "192.168.88.1", 514, received)
	require.True(t, ok)

	assert.Equal(t, 78, p.Priority)
	assert.Equal(t, 9, p.Facility)
	assert.Equal(t, 6, p.Severity)
	assert.Equal(t, "MikrotikRouter", p.Hostname)
	assert.Equal(t, "firewall,info", p.ProcessTag)
	assert.Contains(t, p.Message, "192.168.1.100:12345->192.168.88.1:80")
	assert.Equal(t, 2026, p.Timestamp.Year())
}

func TestParse_RFC3164WithTagAndPID(t *testing.T) {
	line := "<13>Jan  5 00:00:01 host1 myproc[99]: something happened"
	received := time.Date(2026, 1, 5, 0, 0, 2, 0, time.UTC)

	p, ok := Parse(line, "10.0.0.1", 514, received)
	require.True(t, ok)
	assert.Equal(t, "host1", p.Hostname)
	assert.Equal(t, "myproc", p.ProcessTag)
	assert.Equal(t, "99", p.PID)
	assert.Equal(t, "something happened", p.Message)
}

func TestParse_VendorShorthand(t *testing.T) {
	line := "system,error,critical link down on ether2"
	received := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p, ok := Parse(line, "192.168.1.1", 514, received)
	require.True(t, ok)
	assert.Equal(t, 3, p.Severity) // first topic matching a severity name is "error" (index 3)
	assert.Equal(t, "192.168.1.1", p.Hostname)
	assert.Equal(t, received, p.Timestamp)
}

func TestParse_NoMatchReturnsNothing(t *testing.T) {
	_, ok := Parse("", "1.2.3.4", 514, time.Now())
	assert.False(t, ok)
}
