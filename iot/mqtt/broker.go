package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/google/uuid"
	"github.com/relabs-tech/fwevents/events"
)

// Builder is a builder helper for the Broker
type Builder struct {
	// Events is the firmware event service reports are ingested into.
	// This is mandatory.
	Events *events.Service
	// CACertFile is the file path to the X.509 certificate of the
	// certificate authority that signs the device certificates.
	// This is mandatory.
	CACertFile string
	// CertFile is the file path to the server's X.509 certificate file.
	// This is mandatory.
	CertFile string
	// KeyFile is the file path to the server's X.509 private key file.
	// This is mandatory.
	KeyFile string
	// Addr is the listen address, default ":8883".
	Addr string
}

// Broker is the MQTT ingestion bridge for firmware event reports.
//
// Devices authenticate with TLS client certificates. The certificate
// common name must be the id of a provisioned device. An authenticated
// device may publish firmware reports to its own report topic and nothing
// else, the bridge is strictly report-only.
type Broker struct {
	bridge *bridge
}

// NewBroker returns a new broker. The broker does not accept connections
// until Run is called.
func NewBroker(bb *Builder) *Broker {
	if bb.Events == nil {
		panic("Events is missing")
	}
	if len(bb.CACertFile) == 0 {
		panic("ca-cert file missing")
	}
	if len(bb.CertFile) == 0 || len(bb.KeyFile) == 0 {
		panic("cert or key file missing")
	}

	addr := bb.Addr
	if len(addr) == 0 {
		addr = ":8883"
	}
	ln, err := tls.Listen("tcp", addr, serverTLSConfig(bb))
	if err != nil {
		panic(err)
	}

	return &Broker{
		bridge: &bridge{
			ln:      ln,
			devices: make(map[net.Conn]uuid.UUID),
			events:  bb.Events,
		},
	}
}

// serverTLSConfig builds a TLS configuration which requires client
// certificates signed by the configured certificate authority.
func serverTLSConfig(bb *Builder) *tls.Config {
	crt, err := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
	if err != nil {
		panic(err)
	}
	caCert, err := os.ReadFile(bb.CACertFile)
	if err != nil {
		panic(err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		panic("no certificate authority in " + bb.CACertFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{crt},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
}

// Run is blocking and runs the bridge. It listens on syscall.SIGTERM for
// a graceful shutdown.
func (b *Broker) Run() {

	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.bridge.ln),
		gmqtt.WithPlugin(b.bridge),
	)
	s.Run()
	log.Println("mqtt bridge listening on", b.bridge.ln.Addr())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	s.Stop(context.Background())
	log.Println("mqtt bridge stopped")
}

// bridge is the gmqtt plugin which authorizes devices and intercepts
// their firmware reports.
type bridge struct {
	ln      net.Listener
	mu      sync.RWMutex
	devices map[net.Conn]uuid.UUID

	server gmqtt.Server
	events *events.Service
}

// Load implements the gmqtt plugin interface
func (p *bridge) Load(service gmqtt.Server) error {
	log.Println("load fwevents bridge")
	p.server = service
	return nil
}

// Unload implements the gmqtt plugin interface
func (p *bridge) Unload() error { return nil }

// Name implements the gmqtt plugin interface
func (p *bridge) Name() string { return "fwevents bridge" }

// HookWrapper implements the gmqtt plugin interface
func (p *bridge) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnAcceptWrapper:     p.OnAcceptWrapper,
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

// authenticate performs the TLS handshake and verifies that the client
// certificate's common name is the id of a provisioned device.
func (p *bridge) authenticate(ctx context.Context, tlsConn *tls.Conn) (uuid.UUID, error) {
	if err := tlsConn.Handshake(); err != nil {
		return uuid.Nil, err
	}
	commonName := tlsConn.ConnectionState().VerifiedChains[0][0].Subject.CommonName
	deviceID, err := uuid.Parse(commonName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid device id in certificate: %s", commonName)
	}
	exists, err := p.events.Store().DeviceExists(ctx, deviceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cannot verify device id: %s", err)
	}
	if !exists {
		return uuid.Nil, fmt.Errorf("unknown device id in certificate: %s", commonName)
	}
	return deviceID, nil
}

func (p *bridge) acceptedDevice(conn net.Conn) uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.devices[conn]
}

// OnAcceptWrapper authorizes devices via TLS client certificates
func (p *bridge) OnAcceptWrapper(accept gmqtt.OnAccept) gmqtt.OnAccept {
	return func(ctx context.Context, conn net.Conn) bool {
		if tlsConn, ok := conn.(*tls.Conn); ok {
			deviceID, err := p.authenticate(ctx, tlsConn)
			if err != nil {
				log.Println("accept denied:", err)
				return false
			}
			p.mu.Lock()
			p.devices[conn] = deviceID
			p.mu.Unlock()
			log.Println("accept", deviceID)
		}
		return accept(ctx, conn)
	}
}

// OnConnectWrapper enforces that the MQTT client id matches the
// certificate common name
func (p *bridge) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		clientID := client.OptionsReader().ClientID()
		deviceID := p.acceptedDevice(client.Connection())
		if clientID != deviceID.String() {
			log.Println("connect denied,", clientID, "not authorized")
			return packets.CodeNotAuthorized
		}
		log.Println("connect", deviceID)
		return connect(ctx, client)
	}
}

// OnMsgArrivedWrapper ingests firmware reports
func (p *bridge) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		clientID := client.OptionsReader().ClientID()
		topic := msg.Topic()

		deviceID, ok := reportTopicDevice(topic)
		if !ok {
			log.Println("not a firmware report topic:", topic)
			return false
		}
		if deviceID.String() != clientID {
			log.Println("report denied,", clientID, "may not report for", deviceID)
			return false
		}
		if err := p.events.IngestReport(ctx, deviceID, msg.Payload()); err != nil {
			log.Println("report rejected for", clientID, ":", err)
			return false
		}
		return arrived(ctx, client, msg)
	}
}

// OnSubscribeWrapper denies all subscriptions, the bridge is report-only
func (p *bridge) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		log.Println("OnSubscribe", client.OptionsReader().ClientID(), topic.Name, "denied!")
		return packets.SUBSCRIBE_FAILURE
	}
}

// reportTopicDevice returns the device id of a firmware report topic
// fwevents/{device_id}/firmware. It returns false for any other topic.
func reportTopicDevice(topic string) (uuid.UUID, bool) {
	if !strings.HasPrefix(topic, "fwevents/") || !strings.HasSuffix(topic, "/firmware") {
		return uuid.Nil, false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(topic, "fwevents/"), "/firmware")
	if strings.Contains(name, "/") {
		return uuid.Nil, false
	}
	deviceID, err := uuid.Parse(name)
	if err != nil {
		return uuid.Nil, false
	}
	return deviceID, true
}
