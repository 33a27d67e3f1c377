package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
	"github.com/relabs-tech/fwevents/events"
	"github.com/relabs-tech/fwevents/iot/mqtt"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Port             string `env:"PORT,optional,default=3000" description:"the port the REST API listens on"`
	LogLevel         string `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`
	OperatorKeysURL  string `env:"OPERATOR_KEYS_URL,optional" description:"download URL for the operator token signing keys. Operational routes require the admin role when set"`
	OperatorIssuer   string `env:"OPERATOR_TOKEN_ISSUER,optional" description:"accepted issuer for operator tokens"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,optional" description:"comma separated list of Kafka brokers. Event fan-out is disabled when unset"`
	MqttCACertFile   string `env:"MQTT_CA_CERT_FILE,optional" description:"certificate authority for the MQTT bridge. The bridge is disabled when unset"`
	MqttCertFile     string `env:"MQTT_CERT_FILE,optional" description:"server certificate for the MQTT bridge"`
	MqttKeyFile      string `env:"MQTT_KEY_FILE,optional" description:"server key for the MQTT bridge"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.InitLogger(logLevel)

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, "fwevents")
	defer db.Close()

	var publisher *events.Publisher
	if len(service.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(strings.Split(service.KafkaBrokers, ","))
		defer publisher.Close()
	}

	router := mux.NewRouter()

	fwevents := events.New(&events.Builder{
		DB:                  db,
		Router:              router,
		Publisher:           publisher,
		OperatorKeysURL:     service.OperatorKeysURL,
		OperatorTokenIssuer: service.OperatorIssuer,
		UpdateSchema:        true,
	})
	fwevents.ProcessTasksAsync(10 * time.Second)

	log.Println("listen on port :" + service.Port)

	if len(service.MqttCACertFile) > 0 {
		go http.ListenAndServe(":"+service.Port, router)

		bridge := mqtt.NewBroker(&mqtt.Builder{
			Events:     fwevents,
			CertFile:   service.MqttCertFile,
			KeyFile:    service.MqttKeyFile,
			CACertFile: service.MqttCACertFile,
		})
		bridge.Run()
		return
	}

	http.ListenAndServe(":"+service.Port, router)
}
