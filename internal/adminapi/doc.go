// Package adminapi serves the operator HTTP API: version listing and diffs,
// rebuild and rollback jobs on the serial lifecycle lane, snapshot management,
// a websocket stream of queue events and Prometheus metrics.
package adminapi
