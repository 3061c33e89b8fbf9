package calib

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends estimation results to MQTT. Each result goes to
// <prefix>/<name>/result and the full set to <prefix>/results.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	results       map[string]Result
	mu            sync.RWMutex
}

// NewPublisher creates a result publisher. The prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix, then "posecal".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = envOr("MQTT_PUBLISH_PREFIX", prefix)
	if prefix == "" {
		prefix = "posecal"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // Late subscribers see the latest calibration
		results:       make(map[string]Result),
	}
}

// Prefix returns the topic prefix in use
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishResult stores r and publishes it along with the combined topic
func (p *Publisher) PublishResult(r Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if r.Name == "" {
		return fmt.Errorf("result has no name")
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().Unix()
	}

	topic := fmt.Sprintf("%s/%s/result", p.publishPrefix, r.Name)
	if err := p.publish(topic, r); err != nil {
		log.Printf("Error publishing result for %s: %v", r.Name, err)
		return err
	}

	p.mu.Lock()
	p.results[r.Name] = r
	p.mu.Unlock()
	log.Printf("Published %s result for %s (%d/%d inliers, residual %.6g)",
		r.Mode, r.Name, len(r.Inliers), r.Total, r.Residual)

	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined results: %v", err)
		return err
	}
	return nil
}

func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	names := make([]string, 0, len(p.results))
	for name := range p.results {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, p.results[name])
	}
	p.mu.RUnlock()

	message := map[string]interface{}{
		"results":   results,
		"timestamp": time.Now().Unix(),
	}
	return p.publish(fmt.Sprintf("%s/results", p.publishPrefix), message)
}

func (p *Publisher) publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetResult returns the last published result for name
func (p *Publisher) GetResult(name string) (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[name]
	return r, ok
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

