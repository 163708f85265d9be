// Package ingestion wires UDP listeners to parsers, normalizers and the
// document-store writer, routing parse/normalize failures to the
// dead-letter index. Grounded on the teacher's internal/gateway/service.go
// wiring style (config/logger/metrics fields, a New constructor, a
// RegisterRoutes-equivalent Start/Stop pair).
package ingestion

import (
	"context"
	"net"
	"time"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/listener"
	"netedge-siem/internal/model"
	"netedge-siem/internal/netflowparser"
	"netedge-siem/internal/normalize"
	"netedge-siem/internal/syslogparser"
	"netedge-siem/pkg/logger"
	"netedge-siem/pkg/metrics"
)

const (
	syslogEventsIndexPrefix     = "siem-syslog-events"
	netflowEventsIndexPrefix    = "siem-netflow-events"
	deadLetterIndexPrefix       = "siem-dead-letter-queue"
)

// Service wires the ingestion pipeline end to end.
type Service struct {
	store   *docstore.Client
	log     logger.Logger
	metrics *metrics.Collector

	syslogListener  *listener.UDPListener
	netflowListener *listener.UDPListener
}

// New creates the ingestion service bound to syslogAddr/netflowAddr
// (e.g. ":514"/":2055"), with workerPoolSize bounding per-listener
// concurrent handlers.
func New(syslogAddr, netflowAddr string, workerPoolSize int, store *docstore.Client, log logger.Logger, m *metrics.Collector) *Service {
	s := &Service{store: store, log: log, metrics: m}
	s.syslogListener = listener.New("syslog", syslogAddr, workerPoolSize, s.handleSyslog, log)
	s.netflowListener = listener.New("netflow", netflowAddr, workerPoolSize, s.handleNetflow, log)
	return s
}

// Start launches both UDP listeners. Idempotent per-listener.
func (s *Service) Start(ctx context.Context) error {
	if err := s.syslogListener.Start(ctx); err != nil {
		return err
	}
	if err := s.netflowListener.Start(ctx); err != nil {
		s.syslogListener.Stop()
		return err
	}
	return nil
}

// Stop shuts both listeners down, waiting for in-flight handlers.
func (s *Service) Stop() {
	s.syslogListener.Stop()
	s.netflowListener.Stop()
}

func (s *Service) handleSyslog(ctx context.Context, data []byte, from *net.UDPAddr) {
	now := time.Now().UTC()
	line := string(data)

	p, ok := syslogparser.Parse(line, from.IP.String(), from.Port, now)
	if !ok {
		s.deadLetter(ctx, now, from.IP.String(), line, model.EventTypeSyslogParsingFailed, "no known syslog format matched")
		s.metrics.RecordError("ingestion", "parse_error", "syslog")
		return
	}

	event := normalize.Syslog(p, now)
	if event.EventCategory == "" {
		s.deadLetter(ctx, now, from.IP.String(), line, model.EventTypeSyslogNormalizationFailed, "normalizer produced no event_category")
		s.metrics.RecordError("ingestion", "normalization_error", "syslog")
		return
	}

	if ok := s.store.WriteEvent(ctx, syslogEventsIndexPrefix, event.Timestamp, event); !ok {
		s.deadLetter(ctx, now, from.IP.String(), line, model.EventTypeSyslogProcessingError, "document store write failed")
		s.metrics.RecordError("ingestion", "store_error", "syslog")
	}
}

func (s *Service) handleNetflow(ctx context.Context, data []byte, from *net.UDPAddr) {
	now := time.Now().UTC()

	records, err := netflowparser.ParseV5(data, from.IP.String())
	if err != nil {
		s.deadLetter(ctx, now, from.IP.String(), "", model.EventTypeNetflowProcessingError, err.Error())
		s.metrics.RecordError("ingestion", "parse_error", "netflow")
		return
	}

	for _, r := range records {
		event := normalize.NetflowV5(r, from.Port, now)
		if ok := s.store.WriteEvent(ctx, netflowEventsIndexPrefix, event.Timestamp, event); !ok {
			s.deadLetter(ctx, now, from.IP.String(), "", model.EventTypeNetflowNormalizationFailed, "document store write failed")
			s.metrics.RecordError("ingestion", "store_error", "netflow")
		}
	}
}

func (s *Service) deadLetter(ctx context.Context, now time.Time, reporterIP, raw, eventType, reason string) {
	event := model.CommonEvent{
		Timestamp:          now,
		IngestionTimestamp: now,
		ReporterIP:         reporterIP,
		EventCategory:      model.CategoryErrorLog,
		EventType:          eventType,
		Message:            reason,
		RawLog:             raw,
	}
	if ok := s.store.WriteEvent(ctx, deadLetterIndexPrefix, now, event); !ok {
		s.log.Error("dead-letter write failed", "event_type", eventType, "reason", reason)
	}
}
