// Package processing defines the contract between the task engine and the
// external providers that run image and video jobs, plus the classifier that
// folds each provider's status vocabulary into a small canonical set.
package processing
