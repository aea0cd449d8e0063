// Package http provides HTTP handlers and middleware for the timetable API.
//
// The scheduler router exposes the following endpoints:
//   - GET /schedules, POST /schedules, GET /schedules/{id}, PUT /schedules/{id},
//     DELETE /schedules/{id}: schedule management endpoints exchanging the
//     `scheduleDTO` payload defined in schedule_handler.go. Entry times travel
//     as "HH:MM" strings and days as integers (0 = Sunday).
//   - POST /schedules/{id}/optimize: starts an asynchronous optimization run
//     and answers 202 Accepted once the run has been issued.
//   - POST /schedules/{id}/check-conflicts: reports conflicts between the
//     schedule and the rest of the stored collection without mutating anything.
//   - GET /healthz: liveness probe.
//
// The analytics router reuses the same middleware stack and exposes
// GET /analytics/stats, serving the aggregate produced by the event consumer.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
