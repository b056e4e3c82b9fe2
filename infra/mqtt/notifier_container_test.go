package mqtt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/loom/core/events"
	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/infra/logger"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestNotifierWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	received := make(chan paho.Message, 1)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("dashboard"))
	if token := sub.Connect(); token.Wait() && token.Error() != nil {
		t.Skipf("mosquitto not ready: %v", token.Error())
	}
	defer sub.Disconnect(100)
	if token := sub.Subscribe("loom/alerts/shortfall", 1, func(_ paho.Client, m paho.Message) {
		received <- m
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	cli, err := NewPahoClient(Config{Broker: broker, ClientID: "loom-test"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer cli.Disconnect()
	n := NewNotifier(cli, Config{QoS: map[string]byte{"alerts": 1}}, logger.NopLogger{})
	if err := n.Handle(events.ShortfallDetected{
		InstanceID: "i1",
		ProgramID:  "art",
		Date:       testDate,
		Warning:    model.ShortfallWarning{Resource: model.ResourceVehicle, Required: 6, Assigned: 4},
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case m := <-received:
		if m.Topic() != "loom/alerts/shortfall" {
			t.Fatalf("unexpected topic %s", m.Topic())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("shortfall alert not received")
	}
}
