// Package observability owns crosslink's prometheus metrics and the admin API
// request middleware.
package observability
