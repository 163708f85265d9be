package normalize

import (
	"strconv"
	"time"

	"netedge-siem/internal/model"
	"netedge-siem/internal/netflowparser"
)

// protocolMap mirrors PROTOCOL_MAP from the reference normalizer.
var protocolMap = map[uint8]string{
	1: "ICMP", 6: "TCP", 17: "UDP", 47: "GRE", 50: "ESP", 51: "AH", 89: "OSPF", 132: "SCTP",
}

// NetflowV5 maps a decoded NetFlow v5 record into a CommonEvent. NetFlow
// events always carry event_category=network, event_type=flow (spec §4.4).
func NetflowV5(r netflowparser.RecordV5, exporterPort int, ingestionTime time.Time) model.CommonEvent {
	endTime := netflowparser.EventTime(r.EventTimeMs)
	startTime := netflowparser.EventTime(r.FlowStartTimeMs)

	protoName, ok := protocolMap[r.Protocol]
	if !ok {
		protoName = strconv.Itoa(int(r.Protocol))
	}

	e := model.CommonEvent{
		Timestamp:          endTime,
		IngestionTimestamp: ingestionTime,
		ReporterIP:         r.ExporterIP,

		EventCategory: model.CategoryNetwork,
		EventType:     "flow",
		EventAction:   "traffic_flow",
		EventOutcome:  model.OutcomeUnknown,

		SourceIP:        r.SrcAddr.String(),
		SourcePort:      int(r.SrcPort),
		DestinationIP:   r.DstAddr.String(),
		DestinationPort: int(r.DstPort),

		NetworkProtocol:       protoName,
		NetworkProtocolNumber: int(r.Protocol),
		NetworkBytesTotal:     int64(r.Octets),
		NetworkPacketsTotal:   int64(r.Packets),

		TCPFlags:    r.TCPFlagsNames,
		TCPFlagsHex: r.TCPFlagsHex,

		InputInterface:  int(r.InputIf),
		OutputInterface: int(r.OutputIf),
		SourceASN:       int(r.SrcAS),
		DestinationASN:  int(r.DstAS),
		SourceMask:      int(r.SrcMask),

		Tags:             []string{"netflow", "netflow_v5"},
		AdditionalFields: map[string]interface{}{},
	}

	e.FlowStartTime = &startTime
	e.FlowEndTime = &endTime
	if r.LastSwitchedMs >= r.FirstSwitchedMs {
		e.FlowDurationMs = r.FlowDurationMs
	}

	return e
}
