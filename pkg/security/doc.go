// Package security verifies that webhook deliveries really come from
// Clockify. Deliveries carry a signed JWT in the Clockify-Signature header
// (legacy header spellings and raw HMAC digests are accepted for older
// integrations); verification keys come from a static set or a JWKS
// endpoint.
package security
