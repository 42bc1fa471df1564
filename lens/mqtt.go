package lens

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler is called for every message on a command topic.
// command is the topic suffix after "<prefix>/cmd/", e.g. "scope" or "undo".
type CommandHandler func(command string, payload []byte)

// commandQueueSize bounds the commands waiting for the worker
const commandQueueSize = 64

type queuedCommand struct {
	name    string
	payload []byte
}

// MQTTClient manages the MQTT connection, the summary publisher's transport and
// the remote command subscription
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	prefix         string
	commandHandler CommandHandler
	commands       chan queuedCommand
	quit           chan struct{}
	startOnce      sync.Once
	stopOnce       sync.Once
	isConnected    bool
	mu             sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler CommandHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	var mc MQTTConfig
	if config != nil {
		mc = config.MQTT
	}
	broker := setting("MQTT_BROKER", mc.Broker)
	if broker == "" {
		log.Println("[MQTT] Disabled: MQTT_BROKER not set")
		return nil, nil
	}
	if config == nil {
		config = &Config{}
	}

	client := newMQTTClient(config, handler)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(setting("MQTT_CLIENT_ID", mc.ClientID, "mrrlens"))
	if username := setting("MQTT_USERNAME", mc.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(setting("MQTT_PASSWORD", mc.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true) // handlers only enqueue; the command worker keeps arrival order

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// setting returns the environment variable when set, else the first non-empty
// fallback
func setting(env string, fallbacks ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return ""
}

// publishPrefix resolves the topic prefix: env, then config, then "mrrlens"
func publishPrefix(config *Config) string {
	var configured string
	if config != nil {
		configured = config.MQTT.PublishPrefix
	}
	return setting("MQTT_PUBLISH_PREFIX", configured, "mrrlens")
}

// connectWithRetry dials the broker until it succeeds, doubling the wait between
// attempts up to a minute
func (c *MQTTClient) connectWithRetry() {
	const maxDelay = 60 * time.Second
	for delay := time.Second; ; delay = min(delay*2, maxDelay) {
		log.Println("[MQTT] Connecting to broker...")
		token := c.client.Connect()
		switch {
		case !token.WaitTimeout(10 * time.Second):
			log.Println("[MQTT] Connection timeout")
		case token.Error() != nil:
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		default:
			log.Println("[MQTT] Connected to broker")
			c.setConnected(true)
			return
		}
		log.Printf("[MQTT] Retrying connection in %v...", delay)
		time.Sleep(delay)
	}
}

// CommandTopic is the wildcard subscription for remote commands
func (c *MQTTClient) CommandTopic() string {
	return c.prefix + "/cmd/#"
}

// onConnect subscribes to the command topics once the connection is up
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	if c.commandHandler == nil {
		return
	}

	c.startOnce.Do(func() { go c.runCommands() })

	topic := c.CommandTopic()
	log.Printf("[MQTT] Subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.createCommandHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] Reconnecting...")
}

// createCommandHandler queues command messages for the worker. It never blocks
// the paho router: when the queue is full the command is dropped.
func (c *MQTTClient) createCommandHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		command, ok := parseCommandTopic(c.prefix, msg.Topic())
		if !ok {
			log.Printf("[MQTT] Ignoring message on %s", msg.Topic())
			return
		}
		select {
		case c.commands <- queuedCommand{name: command, payload: msg.Payload()}:
		default:
			log.Printf("[MQTT] Command queue full, dropping %s", command)
		}
	}
}

// runCommands applies queued commands one at a time in arrival order
func (c *MQTTClient) runCommands() {
	for {
		select {
		case <-c.quit:
			return
		case cmd := <-c.commands:
			log.Printf("[MQTT] Command %s (%d bytes)", cmd.name, len(cmd.payload))
			c.commandHandler(cmd.name, cmd.payload)
		}
	}
}

// parseCommandTopic extracts the command from "<prefix>/cmd/<command>"
func parseCommandTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/cmd/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection and stops the command worker
func (c *MQTTClient) Disconnect() {
	c.stopOnce.Do(func() { close(c.quit) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// Prefix returns the topic prefix in use
func (c *MQTTClient) Prefix() string {
	return c.prefix
}

func newMQTTClient(config *Config, handler CommandHandler) *MQTTClient {
	return &MQTTClient{
		config:         config,
		prefix:         publishPrefix(config),
		commandHandler: handler,
		commands:       make(chan queuedCommand, commandQueueSize),
		quit:           make(chan struct{}),
	}
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler CommandHandler) *MQTTClient {
	c := newMQTTClient(config, handler)
	c.client = client
	return c
}

// errNotConnected is returned when publishing without a live connection
var errNotConnected = fmt.Errorf("MQTT client not connected")
