// Package codegrid implements the client side of the CodeGrid multiplayer
// protocol: creating, joining, resuming, and spectating game sessions,
// exchanging named JSON events over a persistent WebSocket, and resolving
// opaque player ids to usernames.
//
// A Client is constructed with explicit collaborators (logger, session
// store, HTTP client, WebSocket dialer); it performs no environment
// detection of its own. Transport encryption is negotiated per host: the
// first successful connection settles whether the server speaks wss/https
// or ws/http, and later attempts skip the probe.
package codegrid
