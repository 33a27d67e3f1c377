package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/relabs-tech/fwevents/core/client"
	"github.com/relabs-tech/fwevents/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
)

type IngestTestSuite struct {
	IntegrationTestSuite
}

func TestIngestTestSuite(t *testing.T) {
	suite.Run(t, &IngestTestSuite{})
}

type firmwareReport struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// TestFirmwareReportRoundTrip reports firmware updates over real HTTP,
// processes the queue and verifies both the member facing listing and the
// kafka fan-out.
func (s *IngestTestSuite) TestFirmwareReportRoundTrip() {
	ctx := context.Background()
	store := s.Store()

	project, err := store.CreateProject(ctx, "Integration Project")
	s.Require().NoError(err)
	device, err := store.CreateDevice(ctx, project.ProjectID, "Integration Device")
	s.Require().NoError(err)
	deviceKey, err := store.CreateDeviceKey(ctx, device.DeviceID)
	s.Require().NoError(err)
	membership, err := store.CreateMembership(ctx, project.ProjectID, "integration@example.com")
	s.Require().NoError(err)
	membershipKey, err := store.CreateMembershipKey(ctx, membership.MembershipID)
	s.Require().NoError(err)

	restClient := client.NewWithURL("http://localhost:8080")
	reportHeaders := map[string]string{
		events.DeviceKeyHeader: deviceKey,
		"Content-Type":         "application/json",
	}

	// the device reports two updates, the first one twice
	for _, report := range []firmwareReport{
		{Version: "1.0.0", Timestamp: 100},
		{Version: "1.0.0", Timestamp: 100},
		{Version: "1.1.0", Timestamp: 200},
	} {
		status, err := restClient.RawPostWithHeader("/firmware", reportHeaders, report, nil)
		s.Require().NoError(err)
		s.Require().Equal(http.StatusAccepted, status)
	}

	s.ProcessTasksSync(-1)

	// the listing folds the duplicate away
	list := []events.FirmwareEvent{}
	status, _, err := restClient.RawGetWithHeader("/firmware?device_id="+device.DeviceID.String(),
		map[string]string{events.MembershipKeyHeader: membershipKey}, &list)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Len(list, 2)
	s.Require().Equal("1.0.0", list[0].Version)
	s.Require().Equal("1.1.0", list[1].Version)

	// kafka carries each stored event exactly once, keyed by device
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{s.kafkaAddr},
		Topic:       "firmware.events",
		GroupID:     "fwevents-ingest-test",
		StartOffset: kafka.FirstOffset,
		MaxWait:     time.Second,
	})
	defer reader.Close()

	versions := map[string]bool{}
	for i := 0; i < 2; i++ {
		readCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		message, err := reader.ReadMessage(readCtx)
		cancel()
		s.Require().NoError(err)
		s.Require().Equal(device.DeviceID.String(), string(message.Key))

		var event events.FirmwareEvent
		s.Require().NoError(json.Unmarshal(message.Value, &event))
		s.Require().Equal(device.DeviceID, event.DeviceID)
		versions[event.Version] = true
	}
	s.Require().True(versions["1.0.0"] && versions["1.1.0"], "expected both versions, got %v", versions)

	// no message for the duplicate
	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = reader.ReadMessage(readCtx)
	s.Require().Error(err, "the duplicate report must not be published")

	// no tasks left behind
	health, err := s.Health(false)
	s.Require().NoError(err)
	s.Require().Zero(health.Tasks.Failed)
}
