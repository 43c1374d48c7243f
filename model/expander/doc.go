// Package expander resolves ${...} template references in step inputs and
// output expressions. Resolution runs through an ordered chain of shape
// resolvers (string, slice, map, passthrough) that recurse into nested
// values, so a single code path serves every template shape.
package expander
