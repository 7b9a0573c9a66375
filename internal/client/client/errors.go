package client

import "github.com/dmitrijs2005/grabsmart/internal/httpx"

// Sentinels shared by every Client implementation. A backend rejection is an
// *httpx.APIError; a 401 additionally matches ErrUnauthorized.
var (
	ErrUnavailable  = httpx.ErrUnavailable
	ErrUnauthorized = httpx.ErrUnauthorized
)
