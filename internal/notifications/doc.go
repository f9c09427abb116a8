// Package notifications delivers job outcome events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// the [notifications] section and degrades to a no-op when no topic is set.
// Workflow code depends only on the Service interface and treats delivery
// failures as non-fatal.
package notifications
