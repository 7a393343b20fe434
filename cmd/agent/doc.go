// Command agent runs the local content-filtering agent: it owns the
// device identity, brokers classification verdicts for submitted page
// loads, and serves the one-shot registration surface for unregistered
// devices.
package main
