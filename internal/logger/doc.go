// Package logger is a small wrapper around zap: a global sugared logger
// with a console encoder, context helpers (ToContext/FromContext/WithName/
// WithKV/WithFields) and level functions (Info, InfoKV, ...) that pull the
// logger out of the context.
//
// All services accept a context and log through it, so scoped fields like
// the run ID follow the call chain.
package logger
