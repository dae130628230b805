// Package domain contains the core entities of the media processing service:
// the durable task record and its status model. It has no dependencies on
// storage, transport or provider code.
package domain
