// Package logx wraps zerolog for mediabot.
//
// Console output is short and human friendly, the optional file sink is
// JSON, and warnings can be mirrored into an operator chat (min-level plus
// rate limiting, never blocking the caller).
package logx
