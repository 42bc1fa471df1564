package lens

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes view summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *Summary
	mu            sync.RWMutex
}

// NewPublisher creates a new summary publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "mrrlens"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current view
	}
}

// PublishSummary publishes the summary to "<prefix>/summary" and one message
// per sector to "<prefix>/sectors/<sector>"
func (p *Publisher) PublishSummary(sum Summary) error {
	if p.client == nil || !p.client.IsConnected() {
		return errNotConnected
	}

	p.mu.Lock()
	copied := sum
	p.last = &copied
	p.mu.Unlock()

	if err := p.publishJSON(p.publishPrefix+"/summary", sum); err != nil {
		log.Printf("[MQTT] Error publishing summary: %v", err)
		return err
	}
	for _, st := range sum.Sectors {
		topic := fmt.Sprintf("%s/sectors/%s", p.publishPrefix, TopicSegment(st.Sector))
		if err := p.publishJSON(topic, st); err != nil {
			log.Printf("[MQTT] Error publishing sector %s: %v", st.Sector, err)
			return err
		}
	}

	log.Printf("[MQTT] Published summary: %d visible, %d hidden, scope %s",
		sum.Visible, sum.Hidden, sum.Scope)
	return nil
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastSummary returns the most recently published summary
func (p *Publisher) LastSummary() (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// SetPrefix overrides the topic prefix
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// TopicSegment turns a sector name into a single MQTT topic level: lower case,
// runs of anything but letters and digits collapsed to '-'
func TopicSegment(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}
