// Package telemetry provides the ambient status logging and progress
// reporting used by the MapReduce driver: plain log.Printf status lines
// and in-process counters, reporting doubling-threshold progress rather
// than a continuous stream.
package telemetry
