// Package rate enforces per-identity, per-route-class request budgets on
// Redis fixed-window counters. Each class carries its own window, maximum,
// and backend-outage policy, so exhausting the contact-form budget never
// touches the login budget.
package rate
