// Package record defines the line-oriented record format shared by the
// sorter and the merger: how keys are projected out of a delimited line,
// how two lines are ordered, and how entity, fact and joined group lines
// are decoded and encoded.
//
// Keys are compared byte-wise on the raw field text. "10" sorts before "9"
// and quotes are part of the key, so `"1"` and 1 are different keys.
//
// Fields are split on the delimiter without any quoting or escaping rules.
// A description containing the delimiter therefore shifts every later field.
package record
