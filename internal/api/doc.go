// Package api handles incoming HTTP requests for the task engine: task
// submission, status, cancellation and queue introspection for
// authenticated users, plus signed provider webhooks. Handlers translate
// HTTP concerns to engine operations and map engine errors to status codes
// in one place.
package api
