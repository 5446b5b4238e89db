// Package session tracks live client connections, their chat membership,
// and fan-out of events to a chat's member connections.
//
// The Registry owns the connection-to-chat relation and enforces that each
// connection is in at most one chat's member set at a time. The Broadcaster
// delivers events to the member set (or to a single connection) through
// per-connection Sinks, translating internal tool names into human-readable
// labels for tool-use notifications.
package session
