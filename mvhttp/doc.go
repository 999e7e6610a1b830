// Package mvhttp bridges a game server host to the map vote engine over HTTP.
//
// [*Server] accepts player commands and host events as JSON POST requests
// and exposes the current vote and map pool for reading.
//
// [*CallbackHost] goes the other way:
// it implements [mvengine.Notifier], [mvengine.MapChanger], and [mvengine.VoteDisplay]
// by POSTing JSON messages to a callback URL served by the host,
// optionally over a unix socket.
package mvhttp
