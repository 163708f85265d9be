// Package normalize maps parsed syslog/NetFlow records into CommonEvent,
// classifying event_category/event_action/event_outcome. Grounded on
// syslog_normalizer.py and netflow_normalizer.py's classification
// heuristics and field mappings.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"netedge-siem/internal/model"
	"netedge-siem/internal/syslogparser"
)

var ipExtractRegexp = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

// Syslog maps a parsed syslog line into a CommonEvent. It never returns an
// error for a successfully-parsed line; classification defaults are always
// well-defined (spec §4.4 fail-closed happens only on the parser side).
func Syslog(p syslogparser.Parsed, ingestionTime time.Time) model.CommonEvent {
	e := model.CommonEvent{
		Timestamp:          p.Timestamp,
		IngestionTimestamp: ingestionTime,
		ReporterIP:         p.ReporterIP,
		Hostname:           p.Hostname,
		SyslogFacility:     p.Facility,
		SyslogSeverityCode: p.Severity,
		Message:            p.Message,
		RawLog:             p.RawLog,
		AdditionalFields:   map[string]interface{}{},
	}

	if p.ProcessName != "" {
		e.AdditionalFields["parsed_process_name"] = p.ProcessName
	}
	if p.PID != "" {
		e.AdditionalFields["parsed_pid"] = p.PID
	}

	tagLower := strings.ToLower(p.ProcessTag)
	msgLower := strings.ToLower(p.Message)

	switch {
	case strings.Contains(tagLower, "firewall") ||
		strings.Contains(msgLower, "drop input") || strings.Contains(msgLower, "allow input"):
		e.EventCategory = model.CategoryFirewall
		e.EventType = "firewall_event"
		switch {
		case strings.Contains(msgLower, "drop"):
			e.EventAction = "denied"
			e.EventOutcome = model.OutcomeFailure
		case strings.Contains(msgLower, "accept") || strings.Contains(msgLower, "allow"):
			e.EventAction = "allowed"
			e.EventOutcome = model.OutcomeSuccess
		case strings.Contains(msgLower, "reject"):
			e.EventAction = "denied"
			e.EventOutcome = model.OutcomeFailure
		default:
			e.EventAction = "denied"
			e.EventOutcome = model.OutcomeFailure
		}
		extractIPs(&e, p.Message)

	case strings.Contains(tagLower, "login") || strings.Contains(msgLower, "logged in") ||
		strings.Contains(msgLower, "login failure"):
		e.EventCategory = model.CategoryAuthentication
		e.EventType = "user_login_attempt"
		if strings.Contains(msgLower, "logged in") && !strings.Contains(msgLower, "failed") {
			e.EventOutcome = model.OutcomeSuccess
		} else {
			e.EventOutcome = model.OutcomeFailure
		}

	case strings.Contains(tagLower, "system"):
		e.EventCategory = model.CategorySystem
		e.EventType = "system_event"

	default:
		e.EventCategory = model.CategorySystem
		e.EventType = "generic_event"
	}

	if p.ProcessTag != "" {
		e.AdditionalFields["parsed_process_tag"] = p.ProcessTag
	}

	return e
}

// extractIPs performs the original's crude best-effort extraction of
// src/dst IPs out of free-form firewall log messages: the first two IPv4
// literals found become source_ip/destination_ip.
func extractIPs(e *model.CommonEvent, message string) {
	ips := ipExtractRegexp.FindAllString(message, 2)
	if len(ips) >= 1 {
		e.SourceIP = ips[0]
	}
	if len(ips) >= 2 {
		e.DestinationIP = ips[1]
	}
}
