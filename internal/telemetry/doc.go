// Package telemetry publishes live samples to an MQTT broker so the bench
// can be watched while a run is in progress. Publishing is best effort and
// never affects the run itself.
package telemetry
