// Package api implements the HTTP REST API of the gallery core.
//
// This package provides:
//   - Session endpoints (login, logout, check-auth, change-password)
//   - Media browse and streaming confined to the media root
//   - Admin endpoints for users, folders, uploads and the audit log
//   - Middleware stack (request ID, logging, recovery, security headers,
//     CORS, body limits, rate limiting)
//   - TLS support for production deployments
//
// # Architecture
//
// Handlers are thin. They decode the request, resolve the session cookie
// and call gallery.Service, which owns every authorization decision. The
// handler's only job after that is to map the result or error onto JSON.
//
// # Security
//
// The session cookie carries a signed token wrapping a server-side session
// id. It is HttpOnly and SameSite=Strict, and Secure whenever TLS is
// enabled. Failed logins are rate limited per client address on top of the
// fixed failure delay applied by the auth manager.
//
// # Errors
//
// Every error response has the shape
//
//	{"error": {"status": 403, "code": "access_denied", "message": "..."}}
//
// with a stable code and a message in the client's language (English or
// German, from Accept-Language). Internal details never reach the client.
package api
