// Package cli provides the interactive AuthKeeper command-line client.
//
// It wires configuration, the local token database and the API client into
// a REPL covering the whole account lifecycle: register and verify, log in,
// show the current user, refresh, log out and reset a forgotten password.
// A background watcher probes the server and reports online/offline
// transitions.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
