package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/relabs-tech/fwevents/core/csql"
)

// ErrDeviceNotFound is returned when an operation references a device that
// does not exist (anymore).
var ErrDeviceNotFound = errors.New("device not found")

// Project is the tenant. It owns devices and memberships.
type Project struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership is a member of a project.
type Membership struct {
	MembershipID uuid.UUID `json:"membership_id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Device is a provisioned device. Devices belong to exactly one project.
type Device struct {
	DeviceID  uuid.UUID `json:"device_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FirmwareEvent is a reported firmware update of a device. Timestamp is the
// epoch time reported by the device, CreatedAt is assigned by the server.
type FirmwareEvent struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Version   string    `json:"version"`
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides typed access to the service's persistent tables.
type Store struct {
	db *csql.DB
}

// NewStore creates the data store for the service. With updateSchema set it
// also creates the sql relations if they do not exist yet.
func NewStore(db *csql.DB, updateSchema bool) *Store {
	if updateSchema {
		_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `.project
(project_id uuid DEFAULT uuid_generate_v4(),
name varchar NOT NULL DEFAULT '',
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(project_id)
);
CREATE table IF NOT EXISTS ` + db.Schema + `.membership
(membership_id uuid DEFAULT uuid_generate_v4(),
project_id uuid NOT NULL REFERENCES ` + db.Schema + `.project(project_id) ON DELETE CASCADE,
email varchar NOT NULL UNIQUE,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(membership_id)
);
CREATE table IF NOT EXISTS ` + db.Schema + `.membership_api_key
(key_id uuid DEFAULT uuid_generate_v4(),
key varchar NOT NULL UNIQUE,
membership_id uuid NOT NULL REFERENCES ` + db.Schema + `.membership(membership_id) ON DELETE CASCADE,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(key_id)
);
CREATE table IF NOT EXISTS ` + db.Schema + `.device
(device_id uuid DEFAULT uuid_generate_v4(),
project_id uuid NOT NULL REFERENCES ` + db.Schema + `.project(project_id) ON DELETE CASCADE,
name varchar NOT NULL DEFAULT '',
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(device_id)
);
CREATE table IF NOT EXISTS ` + db.Schema + `.device_api_key
(key_id uuid DEFAULT uuid_generate_v4(),
key varchar NOT NULL UNIQUE,
device_id uuid NOT NULL REFERENCES ` + db.Schema + `.device(device_id) ON DELETE CASCADE,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(key_id)
);
CREATE table IF NOT EXISTS ` + db.Schema + `.device_firmware_event
(serial SERIAL,
device_id uuid NOT NULL REFERENCES ` + db.Schema + `.device(device_id) ON DELETE CASCADE,
version varchar NOT NULL,
timestamp bigint NOT NULL,
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(serial),
UNIQUE(device_id, version, timestamp)
);
CREATE index IF NOT EXISTS device_firmware_event_device_index ON ` + db.Schema + `.device_firmware_event(device_id);
`)
		if err != nil {
			panic(err)
		}
	}
	return &Store{db: db}
}

// CreateProject creates a new project with the given name.
func (s *Store) CreateProject(ctx context.Context, name string) (Project, error) {
	project := Project{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`.project(name) VALUES($1) RETURNING project_id, created_at;`,
		name).Scan(&project.ProjectID, &project.CreatedAt)
	return project, err
}

// CreateMembership creates a new membership in the given project.
func (s *Store) CreateMembership(ctx context.Context, projectID uuid.UUID, email string) (Membership, error) {
	membership := Membership{ProjectID: projectID, Email: email}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`.membership(project_id, email) VALUES($1,$2) RETURNING membership_id, created_at;`,
		projectID, email).Scan(&membership.MembershipID, &membership.CreatedAt)
	return membership, err
}

// CreateDevice creates a new device in the given project.
func (s *Store) CreateDevice(ctx context.Context, projectID uuid.UUID, name string) (Device, error) {
	device := Device{ProjectID: projectID, Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`.device(project_id, name) VALUES($1,$2) RETURNING device_id, created_at;`,
		projectID, name).Scan(&device.DeviceID, &device.CreatedAt)
	return device, err
}

// CreateDeviceKey creates a new api key for the given device and returns
// the key's secret.
func (s *Store) CreateDeviceKey(ctx context.Context, deviceID uuid.UUID) (string, error) {
	key := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`.device_api_key(key, device_id) VALUES($1,$2);`,
		key, deviceID)
	if err != nil {
		return "", err
	}
	return key, nil
}

// CreateMembershipKey creates a new api key for the given membership and
// returns the key's secret.
func (s *Store) CreateMembershipKey(ctx context.Context, membershipID uuid.UUID) (string, error) {
	key := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`.membership_api_key(key, membership_id) VALUES($1,$2);`,
		key, membershipID)
	if err != nil {
		return "", err
	}
	return key, nil
}

// DeviceByKey returns the device the given api key belongs to. If there is
// no such key, it returns csql.ErrNoRows.
func (s *Store) DeviceByKey(ctx context.Context, key string) (Device, error) {
	var device Device
	err := s.db.QueryRowContext(ctx,
		`SELECT d.device_id, d.project_id, d.name, d.created_at FROM `+
			s.db.Schema+`.device_api_key k JOIN `+s.db.Schema+`.device d ON d.device_id = k.device_id WHERE k.key = $1;`,
		key).Scan(&device.DeviceID, &device.ProjectID, &device.Name, &device.CreatedAt)
	return device, err
}

// MembershipByKey returns the membership the given api key belongs to. If
// there is no such key, it returns csql.ErrNoRows.
func (s *Store) MembershipByKey(ctx context.Context, key string) (Membership, error) {
	var membership Membership
	err := s.db.QueryRowContext(ctx,
		`SELECT m.membership_id, m.project_id, m.email, m.created_at FROM `+
			s.db.Schema+`.membership_api_key k JOIN `+s.db.Schema+`.membership m ON m.membership_id = k.membership_id WHERE k.key = $1;`,
		key).Scan(&membership.MembershipID, &membership.ProjectID, &membership.Email, &membership.CreatedAt)
	return membership, err
}

// DeviceByID returns the device with the given id. If there is no such
// device, it returns csql.ErrNoRows.
func (s *Store) DeviceByID(ctx context.Context, deviceID uuid.UUID) (Device, error) {
	device := Device{DeviceID: deviceID}
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, name, created_at FROM `+s.db.Schema+`.device WHERE device_id = $1;`,
		deviceID).Scan(&device.ProjectID, &device.Name, &device.CreatedAt)
	return device, err
}

// DeviceExists returns true if the device with the given id exists.
func (s *Store) DeviceExists(ctx context.Context, deviceID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+s.db.Schema+`.device WHERE device_id = $1;`,
		deviceID).Scan(&one)
	if err == csql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteDevice deletes the device with the given id. The device's api keys
// and firmware events are deleted along with it.
func (s *Store) DeleteDevice(ctx context.Context, deviceID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Schema+`.device WHERE device_id = $1;`, deviceID)
	return err
}

// InsertFirmwareEvent inserts a firmware event row. The triple of device id,
// version and timestamp is unique; inserting the very same event again is
// not an error, the function then reports created as false and leaves the
// stored row untouched.
//
// If the device does not exist, it returns ErrDeviceNotFound.
func (s *Store) InsertFirmwareEvent(ctx context.Context, event FirmwareEvent) (FirmwareEvent, bool, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO `+s.db.Schema+`.device_firmware_event(device_id, version, timestamp) VALUES($1,$2,$3) RETURNING created_at;`,
		event.DeviceID, event.Version, event.Timestamp).Scan(&event.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation: this very event was recorded before
				return event, false, nil
			case "23503": // foreign_key_violation: the device is gone
				return event, false, ErrDeviceNotFound
			}
		}
		return event, false, err
	}
	return event, true, nil
}

// FirmwareEventsByDevice returns all firmware events of the given device,
// ordered by the reported timestamp. Events with the same timestamp keep
// their insertion order.
func (s *Store) FirmwareEventsByDevice(ctx context.Context, deviceID uuid.UUID) ([]FirmwareEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, version, timestamp, created_at FROM `+
			s.db.Schema+`.device_firmware_event WHERE device_id = $1 ORDER BY timestamp ASC, serial ASC;`,
		deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []FirmwareEvent{}
	for rows.Next() {
		var event FirmwareEvent
		err := rows.Scan(&event.DeviceID, &event.Version, &event.Timestamp, &event.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
