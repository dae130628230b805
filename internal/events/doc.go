// Package events carries task lifecycle notifications from the engine to
// collaborators that must react exactly once to a task finishing, such as
// usage accounting and user notifications.
//
// The primary components are:
// - TaskFinishedEvent: emitted on the first terminal write of a task record
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
