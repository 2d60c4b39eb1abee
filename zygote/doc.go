// Package zygote implements the cache loop: a warm process that repeatedly
// receives a list of modules to preload, forks, and keeps listening in the
// parent while the forked child either re-enters the loop as the new cache
// process or escapes it permanently to serve requests.
//
// # Protocol
//
// The control channel is a line of whitespace-delimited text received over
// the cache socket:
//
//	<module1> <module2> ... <moduleN> <signal>
//
// where signal is the literal "cache" (the forked child loops back into
// caching) or any other token (the forked child proceeds to serve).
//
// # Invariant
//
// Exactly one process in the whole descendant tree of a loop ever serves.
// The parent never loads modules and never serves; when a child re-enters
// caching it replaces its forker as the single active listener and the
// forker terminates.
package zygote
