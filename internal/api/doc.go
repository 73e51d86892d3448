// Package api serves the HTTP control surface for a running scan session.
//
// Routes are registered on a gorilla/mux router:
//
//	GET    /api/session              session status
//	POST   /api/session/start        start (or restart) scanning
//	POST   /api/session/stop         stop scanning
//	POST   /api/session/refresh      re-enumerate cameras
//	PUT    /api/session/device       select the camera for the next start
//	GET    /api/devices              enumerated cameras
//	GET    /api/records              accepted records in order
//	DELETE /api/records              clear all records
//	DELETE /api/records/{id}         remove one record
//	GET    /api/export               newline-joined record texts
//	GET    /api/export.xlsx          records as a workbook
//	GET    /api/updates              long-poll session updates (since, limit, wait)
//	GET    /metrics                  Prometheus metrics
//
// DTOs use camelCase JSON tags. When a token is configured every route
// requires "Authorization: Bearer <token>".
package api
