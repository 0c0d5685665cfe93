// Publishes relayed records to an MQTT broker
package mqtt

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Broker         string        // host:port or full URL (tcp://, ssl://, ws://)
	ClientID       string        // defaults to program name plus session
	TopicPrefix    string        // defaults to dronefeed/<hostname>
	QoS            byte          // 0, 1 or 2
	Retain         bool          // broker keeps the newest message per topic
	Encoding       string        // json (default) or msgpack
	ConnectTimeout time.Duration // initial connection wait
	PublishTimeout time.Duration // per message acknowledgement wait
}

type Publisher struct {
	client  paho.Client
	config  Config
	encoder encodeFunc
}

// Connects to broker. Reconnects are handled by the client in the background.
func New(ctx context.Context, config Config) (publisher *Publisher, err error) {
	if config.Broker == "" {
		err = fmt.Errorf("no broker address")
		return
	}
	if config.QoS > 2 {
		err = fmt.Errorf("invalid QoS %d", config.QoS)
		return
	}

	encoder, err := encoderFor(config.Encoding)
	if err != nil {
		return
	}

	if config.ClientID == "" {
		config.ClientID = global.ProgBaseName + "-" + global.SessionID
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = global.ProgBaseName + "/" + global.Hostname
	}
	config.TopicPrefix = strings.TrimSuffix(config.TopicPrefix, "/")
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}

	broker := config.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(config.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Connected to MQTT broker %s\n", broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, lostErr error) {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Lost connection to MQTT broker %s: %v\n", broker, lostErr)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		client.Disconnect(0)
		err = fmt.Errorf("timed out connecting to MQTT broker %s", broker)
		return
	}
	if token.Error() != nil {
		err = fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
		return
	}

	publisher = &Publisher{
		client:  client,
		config:  config,
		encoder: encoder,
	}
	return
}

func (publisher *Publisher) Close() (err error) {
	if publisher == nil || publisher.client == nil {
		return
	}
	publisher.client.Disconnect(250)
	return
}
