package api

// KeyStatusResponse reports whether the server holds a key record for a
// user, without returning the record itself.
type KeyStatusResponse struct {
	HasServerKey bool   `json:"hasServerKey"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}

// ErrorResponse is the JSON body returned for failed API requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
