package events

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
	"github.com/relabs-tech/fwevents/core/schema"
)

//go:embed schemas
var schemasFS embed.FS

// firmwareReportSchemaID identifies the embedded JSON schema for firmware
// event reports.
const firmwareReportSchemaID = "https://fwevents.relabs.tech/schemas/fwevents-report.json"

func newReportValidator() *schema.Validator {
	schemaFS, err := fs.Sub(schemasFS, "schemas")
	if err != nil {
		panic(err)
	}
	validator, err := schema.NewValidatorFromFS(schemaFS)
	if err != nil {
		panic(err)
	}
	return validator
}

// ErrInvalidReport is returned by IngestReport for reports that do not
// validate against the report schema. The error text names the failure.
var ErrInvalidReport = errors.New("invalid firmware report")

// IngestReport validates a raw firmware event report and enqueues it for
// asynchronous persistence. This is the common path for HTTP and MQTT
// ingestion, it does not write the event to the database.
func (s *Service) IngestReport(ctx context.Context, deviceID uuid.UUID, report []byte) error {
	if err := s.validator.ValidateBytes(report, firmwareReportSchemaID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidReport, err)
	}

	var message TaskMessage
	if err := json.Unmarshal(report, &message); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidReport, err)
	}
	message.DeviceID = deviceID

	task := Task{
		Queue:    taskQueueFirmwareEvents,
		Key:      message.Version,
		DeviceID: deviceID,
	}.WithPayload(message)
	return s.Enqueue(ctx, task)
}

func (s *Service) handleFirmwareRoutes(router *mux.Router) {
	logger.Default().Debugln("firmware events")
	logger.Default().Debugln("  handle route: /firmware POST")
	logger.Default().Debugln("  handle route: /firmware GET")

	router.HandleFunc("/firmware", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		switch r.Method {
		case http.MethodPost:
			s.postFirmware(w, r)
		case http.MethodGet:
			s.getFirmware(w, r)
		}
	}).Methods(http.MethodOptions, http.MethodPost, http.MethodGet)
}

// postFirmware accepts a firmware event report from an authorized device.
// The report is validated and enqueued, not yet stored, hence 202.
func (s *Service) postFirmware(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())

	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil || !auth.HasRole("device") {
		jsonError(w, http.StatusUnauthorized, "Access denied. Unauthorized request")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		jsonError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	deviceIDString, _ := auth.Selector("device_id")
	deviceID, err := uuid.Parse(deviceIDString)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4032: invalid device selector")
		http.Error(w, "Error 4032: ", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.IngestReport(r.Context(), deviceID, body)
	if errors.Is(err, ErrInvalidReport) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4029: cannot enqueue firmware event")
		http.Error(w, "Error 4029: ", http.StatusInternalServerError)
		return
	}

	jsonData, _ := json.Marshal(map[string]string{"message": "Update Accepted."})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	w.Write(jsonData)
}

// getFirmware lists the firmware events of a device for an authorized
// project member. The member only sees devices of their own project, any
// other device id gets a 404 as if the device did not exist.
func (s *Service) getFirmware(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())

	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil || !auth.HasRole("member") {
		jsonError(w, http.StatusUnauthorized, "Access Denied. Unauthorized request")
		return
	}

	deviceIDString := r.URL.Query().Get("device_id")
	if len(deviceIDString) == 0 {
		jsonError(w, http.StatusBadRequest, "No Device id provided")
		return
	}
	deviceID, err := uuid.Parse(deviceIDString)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid device id")
		return
	}

	device, err := s.store.DeviceByID(r.Context(), deviceID)
	if err == csql.ErrNoRows {
		jsonError(w, http.StatusNotFound, "Device not found")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorln("Error 4030: cannot query database")
		http.Error(w, "Error 4030: ", http.StatusInternalServerError)
		return
	}

	// the device must belong to the member's project
	projectID, _ := auth.Selector("project_id")
	if device.ProjectID.String() != projectID {
		jsonError(w, http.StatusNotFound, "Device not found")
		return
	}

	events, err := s.store.FirmwareEventsByDevice(r.Context(), deviceID)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4031: cannot query database")
		http.Error(w, "Error 4031: ", http.StatusInternalServerError)
		return
	}

	jsonData, _ := json.Marshal(events)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}
