//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	coremetrics "github.com/kilianp07/iesdispatch/core/metrics"
	coremqtt "github.com/kilianp07/iesdispatch/core/mqtt"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
`

// startMosquitto launches a disposable broker and returns its URL.
func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(mosquittoConf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			}},
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// TestIntegration publishes a run and answers a request through a real broker.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	broker := startMosquitto(t)

	var cli *PahoClient
	var err error
	deadline := time.Now().Add(5 * time.Second)
	for {
		cli, err = NewPahoClient(Config{Broker: broker, ClientID: "dispatcher", QoS: map[string]byte{"run": 1, "request": 1}})
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cli.Disconnect()

	requests := make(chan coremqtt.RunRequest, 1)
	cli.OnRunRequest(func(r coremqtt.RunRequest) { requests <- r })

	runs := make(chan coremetrics.RunRecord, 1)
	probe := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("probe"))
	if tok := probe.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("probe connect: %v", tok.Error())
	}
	defer probe.Disconnect(100)
	tok := probe.Subscribe("iesdispatch/runs/#", 1, func(_ paho.Client, m paho.Message) {
		var rec coremetrics.RunRecord
		if json.Unmarshal(m.Payload(), &rec) == nil {
			runs <- rec
		}
	})
	if tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	if err := cli.RecordRun(coremetrics.RunRecord{RunID: "r1", Case: "tx", Status: "optimal"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	select {
	case rec := <-runs:
		if rec.RunID != "r1" {
			t.Fatalf("unexpected record %+v", rec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run record not received")
	}

	payload, _ := json.Marshal(coremqtt.RunRequest{RequestID: "q1", Case: "tx"})
	if tok := probe.Publish("iesdispatch/requests", 1, false, payload); tok.Wait() && tok.Error() != nil {
		t.Fatalf("publish request: %v", tok.Error())
	}
	select {
	case r := <-requests:
		if r.RequestID != "q1" {
			t.Fatalf("unexpected request %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run request not delivered")
	}
}
