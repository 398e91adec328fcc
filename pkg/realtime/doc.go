// Package realtime pushes project and platform telemetry to websocket
// clients.
//
// Clients connect to ServeWS and exchange JSON frames of the form
// {"event": "...", "data": ...}. They join organization rooms (org-<id>) and
// project rooms (project-<id>), submit project updates, and ask for
// analytics or a system health snapshot. Updates are persisted through
// projects.Store and then published to the project room and the owning
// organization's room; failures are reported only to the sender.
//
// The Scheduler broadcasts a system health snapshot to every client and
// simulated metrics for each operational project to its rooms. Recent
// metrics and notifications are retained in fixed-capacity ring buffers.
//
// Room joins are unauthenticated by default. Config.AuthorizeJoins
// requires an active membership in the organization behind the room.
package realtime
