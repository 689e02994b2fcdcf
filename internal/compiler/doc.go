// Package compiler normalizes the two interchangeable translation backends
// behind one Backend interface. A backend receives raw source text and
// produces module-registration wrapped code together with the ordered list of
// dependency specifiers found in the source. Translation failures surface as
// *CompileError carrying the backend's raw diagnostic so the response layer
// can forward it verbatim to the client. Backends hold no mutable state and
// are safe for concurrent use across paths.
package compiler
