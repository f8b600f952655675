// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

// Package audit publishes merge and link events to a RabbitMQ queue, so that
// downstream consumers (compliance tooling, mostly) can follow entity
// identity changes without polling the database.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/streadway/amqp"
)

// Event is one identity-changing action taken by the pipeline.
type Event struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"` // "ingest", "dedup" or "link"
	Outcome string    `json:"outcome"`
	Target  string    `json:"target,omitempty"`
	Details []string  `json:"details,omitempty"`
}

// Trail is a handle on the audit queue. A nil Trail (or one constructed with
// an empty URL) swallows all events, so callers never need to check whether
// auditing is enabled.
type Trail struct {
	uri       string
	queueName string

	conn        *amqp.Connection
	ch          *amqp.Channel
	isConnected bool
	connectedAt time.Time
}

// NewTrail creates a Trail. An empty rabbitMQURL disables the trail.
func NewTrail(rabbitMQURL, queueName string) *Trail {
	if rabbitMQURL == "" {
		return nil
	}
	return &Trail{uri: rabbitMQURL, queueName: queueName}
}

// connections older than this are cycled before the next publish, to avoid
// publishing into a connection that the server has silently dropped
const connectionLifetime = 5 * time.Minute

func (t *Trail) connect() error {
	if t.isConnected && time.Since(t.connectedAt) < connectionLifetime {
		return nil
	}
	t.disconnect()

	var err error
	t.conn, err = amqp.Dial(t.uri)
	if err != nil {
		return fmt.Errorf("RabbitMQ: failed to establish a connection with the server: %w", err)
	}
	t.connectedAt = time.Now()

	t.ch, err = t.conn.Channel()
	if err != nil {
		return fmt.Errorf("RabbitMQ: failed to open a channel: %w", err)
	}

	_, err = t.ch.QueueDeclare(t.queueName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("RabbitMQ: failed to declare a queue: %w", err)
	}

	t.isConnected = true
	return nil
}

func (t *Trail) disconnect() {
	if !t.isConnected {
		return
	}
	t.ch.Close()
	t.conn.Close()
	t.isConnected = false
}

// Record publishes one event. Publish failures are logged, never returned: an
// unreachable broker must not fail an otherwise successful pipeline run.
func (t *Trail) Record(event Event) {
	if t == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	err := t.publish(event)
	if err != nil {
		logg.Error("audit event not published (action=%s target=%s): %s", event.Action, event.Target, err.Error())
	}
}

func (t *Trail) publish(event Event) error {
	err := t.connect()
	if err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return t.ch.Publish("", t.queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close tears down the broker connection.
func (t *Trail) Close() {
	if t == nil {
		return
	}
	t.disconnect()
}
