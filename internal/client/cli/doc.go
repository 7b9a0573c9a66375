// Package cli provides the interactive GrabSmart command-line client.
//
// It wires configuration, the persisted session, the backend (REST or the
// in-memory fake) and the services, then runs a REPL. While the REPL runs
// the session store watches the local database, so a login, logout or
// expiry in another process shows up here too.
//
// Commands:
//   - register, login, recover, logout, whoami
//   - profile, rename <username>
//   - list, upload <path>, download <id> [dest], delete <id>
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
