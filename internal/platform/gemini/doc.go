// Package gemini provides a processing.Client that generates videos with
// Google's Veo models through the Gemini API.
//
// Each job is a long-running operation. Gemini has no callbacks, so these
// tasks are reconciled by the status watcher alone. Quota and overload
// answers surface as processing.ErrProviderBusy so the engine retries the
// launch later.
package gemini
