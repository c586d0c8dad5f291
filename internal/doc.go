// Package touchlined implements a polling daemon for Roth Touchline floor
// heating controllers.
//
// # Architecture
//
// The daemon is structured into several key packages:
//   - touchline: XML register protocol client for the controller
//   - poller: Poll coordinator with retry, backoff, and offline tracking
//   - history: Per-zone daily min/max/average aggregation with retention
//   - export: CSV rendering of the history
//   - web: HTTP API, health, and metrics endpoints
//   - publisher: Optional MQTT fan-out of zone readings
//   - scheduler: Interval polling and daily maintenance
//
// Key Features
//
//   - Zone Snapshot:
//     Every successful poll replaces the in-memory snapshot of per-zone
//     current and target temperatures; failures keep the previous
//     readings visible as stale data.
//
//   - Offline Tracking:
//     Consecutive failures back off exponentially and flip the device
//     offline once the retry threshold is reached. The next successful
//     poll clears the flag.
//
//   - History:
//     Readings fold into bounded per-zone per-day aggregates, evicted
//     after the configured retention window and optionally persisted
//     to SQLite.
//
// Example Usage
//
//	client := touchline.NewClient("192.168.1.50", 80, 10*time.Second)
//	values, err := client.FetchRegisters(ctx, 7)
//	readings, status := touchline.Normalize(values, 7, time.Now(), logger)
//
// For more information about specific packages, see their respective
// documentation.
package touchlined
