// Package infra holds the adapters around the control loop: serial, CSV,
// MQTT, Kafka and simulated sources, the remote inference client, metric
// and audit-log sinks, and error reporting. Adapters depend only on the
// interfaces defined in the core packages and register themselves with the
// core factories from init.
package infra
