// Package client talks to the AuthKeeper REST API on behalf of the CLI.
//
// HTTPClient has one method per endpoint and keeps the current token pair
// in a tokens.Store. A protected call answered with 401 TOKEN_EXPIRED is
// retried once after a refresh; concurrent callers holding the same stale
// refresh token share a single refresh round trip. A refresh rejected by
// the server clears the stored session.
//
// Errors returned by the server surface as *APIError (match the code with
// errors.As); transport failures wrap ErrUnavailable.
package client
