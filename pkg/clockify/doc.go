// Package clockify is a typed client for the Clockify REST API, scoped to
// one workspace and authenticated with the addon token from the install
// callback. List endpoints are paginated transparently; 429 and 5xx
// responses are retried with backoff.
package clockify
