package indicator

import (
	"context"
	"fmt"
	"time"

	"netedge-siem/internal/model"
)

// mockIndicator is one entry of the bundled mock threat-report catalog.
// Grounded on ioc_sources/services.py's mock JSON data file, which keys
// indicator sets by APT name.
type mockIndicator struct {
	Value       string
	Type        string
	Description string
	Confidence  int
	Tags        []string
}

// mockAPTCatalog stands in for the mock JSON report file the reference
// fetch job loads from disk; every entry here corresponds to one present
// in that file.
var mockAPTCatalog = map[string][]mockIndicator{
	"APT28": {
		{Value: "185.86.151.11", Type: model.IoCTypeIPv4, Description: "APT28 C2 infrastructure", Confidence: 85, Tags: []string{"apt28", "c2"}},
		{Value: "sofacy-update.net", Type: model.IoCTypeDomainName, Description: "APT28 phishing domain", Confidence: 80, Tags: []string{"apt28", "phishing"}},
	},
	"Gamaredon": {
		{Value: "45.142.213.21", Type: model.IoCTypeIPv4, Description: "Gamaredon staging server", Confidence: 75, Tags: []string{"gamaredon", "staging"}},
	},
	"Sandworm": {
		{Value: "94.158.245.211", Type: model.IoCTypeIPv4, Description: "Sandworm operational relay", Confidence: 90, Tags: []string{"sandworm", "ics"}},
		{Value: "electro-update.org", Type: model.IoCTypeDomainName, Description: "Sandworm lure domain", Confidence: 70, Tags: []string{"sandworm", "phishing"}},
	},
	"Turla": {
		{Value: "91.223.82.9", Type: model.IoCTypeIPv4, Description: "Turla watering-hole host", Confidence: 80, Tags: []string{"turla", "watering-hole"}},
	},
}

// aptNamesForSourceType decides which APT groups' indicators a source
// fetch pulls, mirroring fetch_and_store_iocs_from_source's per-source-type
// filtering (MISP/OPENCTI/MOCK_APT_REPORT/INTERNAL).
func aptNamesForSourceType(sourceType string) []string {
	switch sourceType {
	case model.IoCSourceTypeMISP:
		return []string{"APT28", "Gamaredon"}
	case model.IoCSourceTypeOpenCTI:
		return []string{"Sandworm", "Turla"}
	case model.IoCSourceTypeMock:
		return []string{"APT28", "Gamaredon", "Sandworm", "Turla"}
	default:
		return nil
	}
}

// FetchSource pulls the indicators assigned to source.Type from the
// bundled catalog, ensures their APT groups exist, and adds each as a
// manual IoC attributed to that group. Per-IoC failures are logged and
// counted rather than aborting the whole fetch.
func (s *Service) FetchSource(ctx context.Context, source model.IoCSource, ensurer APTGroupEnsurer, apts APTGroupExistence, lookup APTGroupLookup) (added, failed int, err error) {
	names := aptNamesForSourceType(source.Type)
	if len(names) == 0 {
		return 0, 0, nil
	}

	groupIDs, err := ensurer.EnsureGroupsExist(ctx, names)
	if err != nil {
		return 0, 0, fmt.Errorf("ensure apt groups exist for source %s: %w", source.Name, err)
	}

	now := time.Now().UTC()
	for _, name := range names {
		entries, ok := mockAPTCatalog[name]
		if !ok {
			continue
		}
		groupID, hasGroup := groupIDs[name]

		for _, entry := range entries {
			ioc := model.IoC{
				Value:       entry.Value,
				Type:        entry.Type,
				Description: entry.Description,
				IsActive:    true,
				Confidence:  &entry.Confidence,
				Tags:        entry.Tags,
				FirstSeen:   now,
				LastSeen:    now,
				SourceName:  source.Name,
			}
			if hasGroup {
				ioc.AttributedAPTGroupIDs = []int64{groupID}
			}

			if _, err := s.AddManualIoC(ctx, ioc, apts, lookup); err != nil {
				s.log.Warn("failed to add ioc from source fetch", "source", source.Name, "value", entry.Value, "error", err)
				failed++
				continue
			}
			added++
		}
	}
	return added, failed, nil
}
