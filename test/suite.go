package test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresUser     = "testuser"
	postgresPassword = "testpass"
	postgresDB       = "testdb"
)

// IntegrationTestSuite runs the firmware event service against postgres
// and kafka containers, with a real HTTP server in front.
type IntegrationTestSuite struct {
	*events.Service
	suite.Suite

	router    *mux.Router
	srv       *http.Server
	dbConn    *csql.DB
	publisher *events.Publisher

	network           testcontainers.Network
	networkName       string
	postgresContainer testcontainers.Container
	kafkaContainer    testcontainers.Container

	kafkaConn *kafka.Conn
	kafkaAddr string
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	s.createNetwork(ctx)
	postgresSource := s.startPostgres(ctx)
	s.startZookeeper(ctx)
	s.startKafka(ctx)

	var err error
	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)
	s.Require().NoError(s.createTopic("firmware.events", 1), "Failed to create firmware.events topic")

	s.router = mux.NewRouter()
	s.dbConn = csql.OpenWithSchema(postgresSource, postgresPassword, "fwevents")
	s.publisher = events.NewPublisher([]string{s.kafkaAddr})

	s.Service = events.New(&events.Builder{
		DB:                   s.dbConn,
		Router:               s.router,
		Publisher:            s.publisher,
		AuthorizationEnabled: true,
		UpdateSchema:         true,
	})

	s.srv = &http.Server{
		Addr:    ":8080",
		Handler: s.router,
	}
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.T().Errorf("http server: %v", err)
		}
	}()
}

// createNetwork creates a shared Docker network so that kafka can find
// its zookeeper by alias.
func (s *IntegrationTestSuite) createNetwork(ctx context.Context) {
	s.networkName = fmt.Sprintf("fwevents-test-network_%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           s.networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network
}

// startPostgres starts the database container and returns the data source
// name for it, without password.
func (s *IntegrationTestSuite) startPostgres(ctx context.Context) string {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			Networks:       []string{s.networkName},
			NetworkAliases: map[string][]string{s.networkName: {"postgres"}},
			WaitingFor:     wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.postgresContainer = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port.Port(), postgresUser, postgresDB)
}

func (s *IntegrationTestSuite) startZookeeper(ctx context.Context) {
	_, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-zookeeper:7.5.0",
			ExposedPorts: []string{"2181/tcp"},
			Env: map[string]string{
				"ZOOKEEPER_CLIENT_PORT": "2181",
				"ZOOKEEPER_TICK_TIME":   "2000",
			},
			Networks:       []string{s.networkName},
			NetworkAliases: map[string][]string{s.networkName: {"zookeeper"}},
			WaitingFor:     wait.ForListeningPort("2181/tcp"),
		},
		Started: true,
	})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) startKafka(ctx context.Context) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "confluentinc/cp-kafka:7.5.0",
			ExposedPorts: []string{"9092:9092/tcp", "29092:29092/tcp"},
			Env: map[string]string{
				"KAFKA_BROKER_ID":                        "1",
				"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
				"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,PLAINTEXT_HOST://0.0.0.0:29092,EXTERNAL://0.0.0.0:9093",
				"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,PLAINTEXT_HOST://localhost:29092,EXTERNAL://kafka:9093",
				"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,PLAINTEXT_HOST:PLAINTEXT,EXTERNAL:PLAINTEXT",
				"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
				"ALLOW_PLAINTEXT_LISTENER":               "yes",
			},
			Networks:       []string{s.networkName},
			NetworkAliases: map[string][]string{s.networkName: {"kafka"}},
			WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.kafkaContainer = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", host, port.Port())
}

func (s *IntegrationTestSuite) createTopic(topic string, numPartitions int) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka broker connection not open")
	}

	err := s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()

	if s.srv != nil {
		s.Require().NoError(s.srv.Shutdown(ctx))
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}

	if s.kafkaContainer != nil {
		s.Require().NoError(s.kafkaContainer.Terminate(ctx))
	}
	if s.postgresContainer != nil {
		s.Require().NoError(s.postgresContainer.Terminate(ctx))
	}
}
