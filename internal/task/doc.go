// Package task is the processing engine: it admits task submissions under a
// concurrency bound, launches them on external providers, parks capacity
// rejections in a delayed-retry pool, and reconciles each job's outcome from
// status polling and provider webhooks into a single terminal write per task.
//
// All engine state lives in one process. Task records are the durable side
// and let a restarted engine resume where the previous one stopped.
package task
