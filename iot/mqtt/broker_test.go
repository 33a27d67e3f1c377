package mqtt

import (
	"testing"

	"github.com/google/uuid"
)

func TestReportTopicDevice(t *testing.T) {
	deviceID := uuid.New()

	id, ok := reportTopicDevice("fwevents/" + deviceID.String() + "/firmware")
	if !ok {
		t.Fatal("expected valid report topic")
	}
	if id != deviceID {
		t.Fatal("expected device id", deviceID, "got", id)
	}

	invalid := []string{
		"fwevents/" + deviceID.String(),
		"fwevents/" + deviceID.String() + "/twin",
		"fwevents/not-a-uuid/firmware",
		"fwevents/" + deviceID.String() + "/extra/firmware",
		"other/" + deviceID.String() + "/firmware",
		"",
	}
	for _, topic := range invalid {
		if _, ok := reportTopicDevice(topic); ok {
			t.Fatal("expected invalid report topic:", topic)
		}
	}
}
