// Package fingerprint derives a stable device identity hash from a fixed,
// ordered bundle of host and environment signals.
//
// The fingerprint is recomputed fresh for every page load and is never
// persisted. It is a separate identity concept from the registered device
// ID: the hash is transmitted as identity material in form embedding, while
// the device ID is bound to an account at registration time.
//
// Generation never fails. Capability probes (graphics, audio) report
// availability once per generation; missing capabilities contribute sentinel
// values, and any unrecoverable error degrades the whole fingerprint to a
// random non-colliding token rather than blocking the page lifecycle.
package fingerprint
