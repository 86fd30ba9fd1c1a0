// Package xpingsdk is the public surface of the Xping test-telemetry SDK:
// a process-wide orchestrator that wires identity generation, environment
// detection, execution tracking, retry detection, buffered collection, and
// resilient HTTP upload behind three calls. Host test-framework adapters
// call Initialize once per process, RecordTest once per completed test,
// and FinalizeAsync at process shutdown (or from their own exit hook).
package xpingsdk
