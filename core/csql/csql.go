package csql

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// DB wraps a standard sql.DB together with the postgres schema all
// queries of the firmware event service run against.
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow does not return a row.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database and selects a schema. The
// password is passed separately so that the data source name can be
// logged. The schema gets created if it does not exist yet, and the
// uuid-ossp extension is loaded for generated object identifiers.
func OpenWithSchema(dataSourceName, dataSourcePassword, schema string) *DB {
	log.Infoln("connecting to postgres database:", dataSourceName)
	if len(dataSourcePassword) > 0 {
		dataSourceName += " password=" + dataSourcePassword
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)

	// the database container may still be starting up
	for i := 0; ; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		if i >= 5 {
			panic(err)
		}
		log.Infoln("database not ready yet:", err.Error())
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}

	if len(schema) == 0 {
		return &DB{DB: db, Schema: "public"}
	}

	log.Infoln("selected database schema:", schema)
	_, err = db.Exec(fmt.Sprintf(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS %s;`, pq.QuoteIdentifier(schema)))
	if err != nil {
		panic(err)
	}
	return &DB{DB: db, Schema: schema}
}

// ClearSchema drops the database schema and recreates it empty. All
// data the schema contained is lost.
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	quoted := pq.QuoteIdentifier(db.Schema)
	_, err := db.Exec(fmt.Sprintf(`DROP SCHEMA %s CASCADE; CREATE schema IF NOT EXISTS %s;`, quoted, quoted))
	if err != nil {
		log.Errorln("clear schema error:", db.Schema, err.Error())
	}
}
