// Package api provides the bridge's local HTTP API and live state stream.
//
// Endpoints under /api/v1:
//
//	GET  /health                      controller and broker link status
//	GET  /metrics                     runtime, link, and registry metrics
//	GET  /devices                     registry snapshot
//	GET  /devices/{externalID}        one device
//	GET  /devices/{externalID}/history?limit=N
//	GET  /lights                      last reported light states
//	POST /lights/{id}/toggle          EBI <id>,10
//	POST /sync/{class}                GSF <class>
//	GET  /ws                          state.changed events, optionally filtered by id
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
