// Package syslogparser decodes RFC3164-like and vendor-shorthand syslog
// lines into a parsed field map. Grounded on the reference implementation's
// parse_syslog_message_rfc3164_like (syslog_parser.py): two regex attempts
// in order, then a topic-prefixed fallback format that carries no PRI/host/
// time of its own.
package syslogparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parsed is the output of a successful parse. Fields not produced by a
// given format are left at their zero value.
type Parsed struct {
	Priority     int
	Facility     int
	Severity     int
	Timestamp    time.Time
	Hostname     string
	ProcessTag   string
	ProcessName  string
	PID          string
	Message      string
	ReporterIP   string
	ReporterPort int
	RawLog       string
}

// severityNames indexes syslog severities 0..7 for the vendor-shorthand
// topic match.
var severityNames = []string{
	"emergency", "alert", "critical", "error",
	"warning", "notice", "informational", "debug",
}

// rfc3164WithTag matches "<PRI>MMM D HH:MM:SS HOST TAG[PID]: MESSAGE".
var rfc3164WithTag = regexp.MustCompile(
	`^<(\d{1,3})>([A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^:\[\s]+)(?:\[(\d+)\])?:\s*(.*)$`,
)

// rfc3164Generic matches the same header without a reliable tag capture;
// the message is returned whole and a leading tag-shaped word is recovered
// heuristically.
var rfc3164Generic = regexp.MustCompile(
	`^<(\d{1,3})>([A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})\s+(\S+)\s+(.*)$`,
)

// tagShaped recognises a leading "word:" or "word[pid]:" at the start of a
// message body, for the generic fallback's tag recovery.
var tagShaped = regexp.MustCompile(`^([^:\[\s]+)(?:\[(\d+)\])?:\s*(.*)$`)

const bsdTimeLayout = "Jan _2 15:04:05 2006"

// Parse attempts each accepted format in order and returns the parsed map,
// or ok=false if no format matches (total function: no partial results).
func Parse(line string, reporterIP string, reporterPort int, receivedAt time.Time) (Parsed, bool) {
	raw := line

	if m := rfc3164WithTag.FindStringSubmatch(line); m != nil {
		pri, err := strconv.Atoi(m[1])
		if err != nil {
			return Parsed{}, false
		}
		ts := parseBSDTimestamp(m[2], receivedAt)
		return Parsed{
			Priority:     pri,
			Facility:     pri / 8,
			Severity:     pri % 8,
			Timestamp:    ts,
			Hostname:     m[3],
			ProcessTag:   m[4],
			ProcessName:  m[4],
			PID:          m[5],
			Message:      m[6],
			ReporterIP:   reporterIP,
			ReporterPort: reporterPort,
			RawLog:       raw,
		}, true
	}

	if m := rfc3164Generic.FindStringSubmatch(line); m != nil {
		pri, err := strconv.Atoi(m[1])
		if err != nil {
			return Parsed{}, false
		}
		ts := parseBSDTimestamp(m[2], receivedAt)
		hostname := m[3]
		message := m[4]

		p := Parsed{
			Priority:     pri,
			Facility:     pri / 8,
			Severity:     pri % 8,
			Timestamp:    ts,
			Hostname:     hostname,
			Message:      message,
			ReporterIP:   reporterIP,
			ReporterPort: reporterPort,
			RawLog:       raw,
		}
		if tm := tagShaped.FindStringSubmatch(message); tm != nil {
			p.ProcessTag = tm[1]
			p.ProcessName = tm[1]
			p.PID = tm[2]
			p.Message = tm[3]
		}
		return p, true
	}

	// Vendor shorthand: "topic1,topic2,... MESSAGE" with no PRI/host/time.
	if p, ok := parseVendorShorthand(line, reporterIP, reporterPort, receivedAt); ok {
		return p, true
	}

	return Parsed{}, false
}

func parseBSDTimestamp(s string, receivedAt time.Time) time.Time {
	year := receivedAt.UTC().Year()
	ts, err := time.Parse(bsdTimeLayout, strings.TrimSpace(s)+" "+strconv.Itoa(year))
	if err != nil {
		return receivedAt.UTC()
	}
	return ts.UTC()
}

func parseVendorShorthand(line, reporterIP string, reporterPort int, receivedAt time.Time) (Parsed, bool) {
	spaceIdx := strings.IndexAny(line, " \t")
	if spaceIdx <= 0 {
		return Parsed{}, false
	}
	topicPart := line[:spaceIdx]
	message := strings.TrimSpace(line[spaceIdx:])
	if message == "" {
		return Parsed{}, false
	}
	topics := strings.Split(topicPart, ",")
	if len(topics) == 0 {
		return Parsed{}, false
	}

	severity := -1
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		for i, name := range severityNames {
			if t == name {
				severity = i
				break
			}
		}
		if severity >= 0 {
			break
		}
	}
	if severity < 0 {
		return Parsed{}, false
	}

	return Parsed{
		Severity:     severity,
		Timestamp:    receivedAt.UTC(),
		Hostname:     reporterIP,
		Message:      message,
		ReporterIP:   reporterIP,
		ReporterPort: reporterPort,
		RawLog:       line,
	}, true
}
