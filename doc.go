// Package mqttbridge bridges an MQTT subscription to a synchronous HTTP sink:
// every message published on the subscribed topic is converted into a JSON
// document and delivered via HTTP POST, with retried, at-least-once delivery
// that survives transient sink failures.
//
// Works both as a library for embedding in your application AND as a
// standalone bridge daemon (cmd/mqtt-bridge).
//
// # Features
//
//   - Bounded in-memory queue decoupling arrival rate from delivery rate,
//     with configurable backpressure (block) or drop-oldest overflow
//   - Exponential backoff retry with cap and optional jitter
//   - Retryable vs permanent failure classification (429/5xx and transport
//     errors retry; other statuses dead-letter immediately)
//   - Dead-letter reporting through a pluggable outcome sink, with SQL
//     (Relica over MySQL/PostgreSQL/SQLite) and redis stream adapters
//   - Options Pattern construction with dependency validation
//   - Pluggable architecture: bring your own Logger, MessageSink, OutcomeSink
//   - Graceful shutdown: in-flight POSTs finish, every undelivered envelope
//     is reported before exit
//   - Atomic pipeline counters for observability
//
// # Quick Start
//
// Build the pipeline and feed it from the MQTT adapter:
//
//	sink, err := mqttbridge.NewHTTPSink("https://ingest.example.com/events",
//	    mqttbridge.WithRequestTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pipe, err := mqttbridge.NewPipeline(
//	    mqttbridge.WithSink(sink),
//	    mqttbridge.WithLogger(logger),
//	    mqttbridge.WithOutcomeSink(mqttbridge.NewLoggingOutcomeSink(logger)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	source, err := mqtt.NewSource(mqtt.Config{
//	    BrokerURL: "tcp://localhost:1883",
//	    Topic:     "data/sensor",
//	    ClientID:  "mqtt-rest-bridge",
//	}, pipe, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	go func() {
//	    if err := source.Start(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	}()
//	_ = pipe.Run(ctx)
//	source.Stop()
//
// # Wire Contract
//
// The POST body is the message payload parsed as a JSON object, or
// {"raw": "<text>"} when the payload is not a JSON object, with the metadata
// fields "topic" and "receivedAt" set last; metadata wins over conflicting
// payload keys. Retries re-send byte-identical bodies.
//
// # Delivery Semantics
//
// At-least-once while the process lives: the buffer is in-memory and its
// loss on crash is an accepted risk, not a guarantee violation. Exactly-once
// delivery, payload transformation, and multi-topic routing are out of
// scope.
package mqttbridge
