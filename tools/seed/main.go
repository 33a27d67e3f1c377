package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/registry"
	"github.com/relabs-tech/fwevents/events"
)

// Service holds the configuration for the seed tool
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
}

type sampleData struct {
	ProjectID     uuid.UUID `json:"project_id"`
	MembershipID  uuid.UUID `json:"membership_id"`
	DeviceID      uuid.UUID `json:"device_id"`
	DeviceKey     string    `json:"device_api_key"`
	MembershipKey string    `json:"project_membership_api_key"`
}

// The seed tool provisions a sample project with one membership, one device
// and api keys for both. It is idempotent: running it again prints the
// already provisioned sample instead of creating a second one.
func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, "fwevents")
	defer db.Close()

	store := events.NewStore(db, true)
	seedRegistry := registry.New(db).Accessor("seed")

	ctx := context.Background()

	var data sampleData
	timestamp, err := seedRegistry.Read("sample", &data)
	if err != nil {
		panic(err)
	}

	if timestamp.IsZero() {
		fmt.Println("Creating api keys")

		project, err := store.CreateProject(ctx, "Test Project")
		if err != nil {
			panic(err)
		}
		membership, err := store.CreateMembership(ctx, project.ProjectID, "test@email.com")
		if err != nil {
			panic(err)
		}
		device, err := store.CreateDevice(ctx, project.ProjectID, "Test Device")
		if err != nil {
			panic(err)
		}
		deviceKey, err := store.CreateDeviceKey(ctx, device.DeviceID)
		if err != nil {
			panic(err)
		}
		membershipKey, err := store.CreateMembershipKey(ctx, membership.MembershipID)
		if err != nil {
			panic(err)
		}

		data = sampleData{
			ProjectID:     project.ProjectID,
			MembershipID:  membership.MembershipID,
			DeviceID:      device.DeviceID,
			DeviceKey:     deviceKey,
			MembershipKey: membershipKey,
		}
		if err := seedRegistry.Write("sample", data); err != nil {
			panic(err)
		}
	} else {
		fmt.Println("Sample data already provisioned at", timestamp)
	}

	fmt.Println("-------------------------------------------------")
	fmt.Println("Device api key:", data.DeviceKey)
	fmt.Println("Project membership api key:", data.MembershipKey)
	fmt.Println("Device id :", data.DeviceID)
}
