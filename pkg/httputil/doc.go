// Package httputil provides the HTTP plumbing shared by clients of the host
// kernel API.
//
// # Overview
//
//   - [Client]: JSON-over-HTTP requests with default headers and retries
//   - [Retry]: automatic retry with exponential backoff
//
// # Retry
//
// [Retry] only repeats errors wrapped in [RetryableError]. [Client] marks
// network failures, 429 and 5xx responses as retryable; everything else
// fails immediately:
//
//	err := httputil.Retry(ctx, httputil.DefaultPolicy, func() error {
//	    return client.PostJSON(ctx, "/api/query/sql", req, &resp)
//	})
//
// # Configuration
//
// Default settings:
//
//   - Timeout: 10 seconds per request
//   - Attempts: 3
//   - Base backoff: 500 milliseconds, doubling, capped at 5 seconds
package httputil
