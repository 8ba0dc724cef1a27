// Package download fetches dataset archives and unpacks them into the raw data tree.
//
// Requests carry a browser User-Agent, are rate limited and retried with exponential
// backoff. Responses must be ZIP archives; anything else is a permanent failure.
package download
