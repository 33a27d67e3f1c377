/*Package registry provides a persistent registry of objects in the
service's database schema. Values are serialized as JSON.

The service uses the registry for small configuration style objects
that must survive restarts, such as the cached operator key set.
*/
package registry

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/fwevents/core/csql"
)

// Registry is a persistent registry of objects in a sql database.
type Registry struct {
	db *csql.DB

	readQuery   string
	upsertQuery string
	deleteQuery string
}

// New creates the registry relation in the database schema if it does
// not exist yet and returns the registry.
func New(db *csql.DB) Registry {
	_, err := db.Exec(fmt.Sprintf(`CREATE table IF NOT EXISTS %s."_registry_"
(key varchar NOT NULL,
value json NOT NULL,
timestamp timestamp NOT NULL,
PRIMARY KEY(key)
);`, db.Schema))
	if err != nil {
		panic(err)
	}

	return Registry{
		db:        db,
		readQuery: fmt.Sprintf(`SELECT value, timestamp FROM %s."_registry_" WHERE key=$1;`, db.Schema),
		upsertQuery: fmt.Sprintf(`INSERT INTO %s."_registry_"(key,value,timestamp) VALUES($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET value=$2,timestamp=$3;`, db.Schema),
		deleteQuery: fmt.Sprintf(`DELETE FROM %s."_registry_" WHERE key=$1;`, db.Schema),
	}
}

// Accessor reads and writes registry objects under a common prefix.
// Different accessors can safely use the same key for different objects.
type Accessor struct {
	prefix   string
	registry Registry
}

// Accessor returns a registry accessor for the given prefix.
func (r Registry) Accessor(prefix string) Accessor {
	return Accessor{prefix: prefix, registry: r}
}

func (a Accessor) prefixed(key string) string {
	if len(a.prefix) == 0 {
		return key
	}
	return a.prefix + ":" + key
}

// Read reads the object stored under key into value. It returns the time
// the object was written, or a zero timestamp if there is no object.
func (a Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue  json.RawMessage
		timestamp time.Time
	)
	err := a.registry.db.QueryRow(a.registry.readQuery, a.prefixed(key)).Scan(&rawValue, &timestamp)
	if err == csql.ErrNoRows {
		return timestamp, nil
	}
	if err != nil {
		return timestamp, fmt.Errorf("cannot read key '%s': %s", a.prefixed(key), err.Error())
	}
	return timestamp, json.Unmarshal(rawValue, &value)
}

// Write stores value under key, replacing any previous object.
func (a Accessor) Write(key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	res, err := a.registry.db.Exec(a.registry.upsertQuery, a.prefixed(key), string(body), time.Now().UTC())
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key %s", a.prefixed(key))
	}
	return nil
}

// Delete deletes the object stored under key, if any.
func (a Accessor) Delete(key string) error {
	_, err := a.registry.db.Exec(a.registry.deleteQuery, a.prefixed(key))
	return err
}
