package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	coremon "github.com/kilianp07/iesdispatch/core/monitoring"
	coremqtt "github.com/kilianp07/iesdispatch/core/mqtt"
	"github.com/kilianp07/iesdispatch/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	Retain      bool            `json:"retain"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes dispatch results with Eclipse Paho and receives run
// requests. It implements MetricsSink, ScheduleRecorder and
// WindowStateRecorder.
type PahoClient struct {
	cli    pahoClient
	topics coremqtt.Topics
	qos    map[string]byte
	retain bool

	mu         sync.Mutex
	handler    coremqtt.RequestHandler
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the request
// topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		topics:     coremqtt.Topics{Prefix: cfg.TopicPrefix},
		logger:     logger,
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		topic := pc.topics.Requests()
		if token := c.Subscribe(topic, pc.qosFor("request"), pc.onRequest); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// OnRunRequest installs the handler called for every valid run request.
func (p *PahoClient) OnRunRequest(h coremqtt.RequestHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *PahoClient) onRequest(_ paho.Client, msg paho.Message) {
	var req coremqtt.RunRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		p.logger.Errorf("failed to decode run request: %v", err)
		return
	}
	if err := req.Validate(); err != nil {
		p.logger.Warnf("rejected run request: %v", err)
		return
	}
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		p.logger.Warnf("run request %s dropped: no handler", req.RequestID)
		return
	}
	p.logger.Infof("received run request %s for %s", req.RequestID, req.Case)
	h(req)
}

// publish marshals v and sends it with retries and exponential backoff.
// The last error is reported to the monitor.
func (p *PahoClient) publish(topic, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := p.qosFor(kind)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return publishErr
}

// RecordRun publishes the run record on the case run topic.
func (p *PahoClient) RecordRun(rec coremetrics.RunRecord) error {
	return p.publish(p.topics.Run(rec.Case), "run", rec)
}

// RecordWindowState publishes a window state transition.
func (p *PahoClient) RecordWindowState(ev coremetrics.WindowStateEvent) error {
	return p.publish(p.topics.Window(ev.Case), "run", ev)
}

type vectorMessage struct {
	RunID  string    `json:"run_id"`
	Dt     float64   `json:"dt"`
	Start  time.Time `json:"start"`
	Values []float64 `json:"values"`
}

// RecordSchedule publishes one message per Activity Matrix vector.
func (p *PahoClient) RecordSchedule(sc coremetrics.Schedule) error {
	type key struct{ component, resource, tracker string }
	var order []key
	vectors := make(map[key]*vectorMessage)
	for _, e := range sc.Entries {
		k := key{e.Component, string(e.Resource), string(e.Tracker)}
		v, ok := vectors[k]
		if !ok {
			v = &vectorMessage{RunID: sc.RunID, Dt: sc.Dt, Start: e.Time}
			vectors[k] = v
			order = append(order, k)
		}
		v.Values = append(v.Values, e.Value)
	}
	for _, k := range order {
		topic := p.topics.Schedule(sc.Case, k.component, k.resource, k.tracker)
		if err := p.publish(topic, "schedule", vectors[k]); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	return nil
}

// Reply publishes the outcome of a run request.
func (p *PahoClient) Reply(r coremqtt.RunReply) error {
	return p.publish(p.topics.Replies(), "run", r)
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
