// Package http exposes the meeting service over JSON.
//
// Routes live under /api/meetings/{id}:
//   - POST /api/meetings creates a meeting and returns its admin token once.
//   - GET /api/meetings/{id}, /best-slots and /heatmap are public reads.
//   - POST .../participants/{pid}/claim and /force-claim bind a device token.
//   - POST .../participants/{pid}/session checks a device token from the body.
//   - PUT .../participants/{pid}/slots requires the X-Device-Token header.
//   - POST .../guest-requests is throttled per client origin.
//   - Admin routes (approve, reject, status, session reset, participant
//     delete, finalize, admin check) require the X-Admin-Token header.
//
// Failures use the body {"error_code","message","errors"}. Messages are
// generic; detail goes to the request log only.
package http
