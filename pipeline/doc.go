// Package pipeline runs documents through N duplicates of a processing
// resource.
//
// Each duplicate is built by a factory and sees three lifecycle hooks:
// OnRunStart before the first document, OnDocument for every document it is
// handed, and OnRunEnd after the input is exhausted or the run failed.
// Duplicate 0 is created first and is the one a factory should give the
// opener role for shared resources.
//
// Every run owns one interruption Flag. It is set when the caller's context
// is cancelled or when any duplicate fails, and processors poll it through
// the Interrupter they receive.
package pipeline
