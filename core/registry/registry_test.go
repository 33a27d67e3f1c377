package registry

import (
	"os"
	"testing"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/fwevents/core/csql"
)

// TestService holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type TestService struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	registry         Registry
}

var testService TestService

func TestMain(m *testing.M) {
	if err := envdecode.Decode(&testService); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(testService.Postgres, testService.PostgresPassword, "_registry_unit_test_")
	defer db.Close()
	db.ClearSchema()

	testService.registry = New(db)

	code := m.Run()
	os.Exit(code)
}

func TestRegistry(t *testing.T) {

	type keySet struct {
		URL  string
		Keys map[string]string
	}

	write := keySet{
		URL:  "https://auth.fwevents.test/keys",
		Keys: map[string]string{"op-1": "PEM"},
	}

	jwtRegistry := testService.registry.Accessor("_jwt_")

	// a key that was never written reads as a zero timestamp
	var nothing interface{}
	createdAt, err := jwtRegistry.Read("never written", nothing)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("non existing key seems to exist")
	}

	now := time.Now()
	if err := jwtRegistry.Write("keys", write); err != nil {
		t.Fatal(err)
	}

	var read keySet
	createdAt, err = jwtRegistry.Read("keys", &read)
	if err != nil {
		t.Fatal(err)
	}
	if read.URL != write.URL || read.Keys["op-1"] != "PEM" {
		t.Fatal("could not read what I wrote")
	}
	if createdAt.Sub(now) > time.Second {
		t.Fatal("created at is off")
	}

	// writing again replaces the object and advances the timestamp
	write.Keys["op-2"] = "ANOTHER PEM"
	if err := jwtRegistry.Write("keys", write); err != nil {
		t.Fatal(err)
	}
	updatedAt, err := jwtRegistry.Read("keys", &read)
	if err != nil {
		t.Fatal(err)
	}
	if len(read.Keys) != 2 {
		t.Fatal("unexpected keys:", read.Keys)
	}
	if updatedAt.Before(createdAt) {
		t.Fatal("timestamp did not advance")
	}
}

func TestRegistryPrefixes(t *testing.T) {

	one := testService.registry.Accessor("one")
	two := testService.registry.Accessor("two")

	if err := one.Write("shared", "from one"); err != nil {
		t.Fatal(err)
	}
	if err := two.Write("shared", "from two"); err != nil {
		t.Fatal(err)
	}

	var value string
	if _, err := one.Read("shared", &value); err != nil {
		t.Fatal(err)
	}
	if value != "from one" {
		t.Fatal("prefixes bleed into each other:", value)
	}
}

func TestRegistryDelete(t *testing.T) {

	testRegistry := testService.registry.Accessor("_test_")

	if err := testRegistry.Write("doomed", "value"); err != nil {
		t.Fatal(err)
	}
	if err := testRegistry.Delete("doomed"); err != nil {
		t.Fatal(err)
	}

	var read string
	createdAt, err := testRegistry.Read("doomed", &read)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("deleted key seems to exist")
	}
}
