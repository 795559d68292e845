// Package avews implements the bridge between an AVE web server (the
// DominaPlus home-automation controller) and Home Assistant.
//
// The controller speaks a framed text protocol over a WebSocket on port
// 14001. This package decodes its frames into device state and pushes that
// state to the hub, and encodes hub requests back into controller frames.
//
// # Architecture
//
//	┌──────────────────┐  WebSocket  ┌──────────────────┐  REST / MQTT  ┌─────────────────┐
//	│  AVE web server  │◄───────────►│   AVE bridge     │──────────────►│ Home Assistant  │
//	│   (port 14001)   │             │   (this pkg)     │◄──────────────│                 │
//	└──────────────────┘             └──────────────────┘  switch cmds  └─────────────────┘
//
// # Components
//
//   - protocol.go: frame codec and checksum
//   - commands.go: closed command vocabulary and outbound frame builders
//   - registry.go: last known value of every device, with change detection
//   - dispatcher.go: per-command handling of inbound messages
//   - connection.go: connection supervisor (reconnect loop, poller, send)
//   - bridge.go: wiring, hub commands, lifecycle
//
// # Frame format
//
//	STX command [FS param FS param ...] ETX CK1 CK2 EOT
//
// Inbound bodies may carry records separated by RS, each a list of
// FS-separated fields. Inbound checksums are not verified.
//
// # Thread Safety
//
// Bridge, Registry and Supervisor are safe for concurrent use. Messages are
// dispatched sequentially in arrival order.
package avews
