package record

import "strings"

// DefaultDelimiter separates fields in every file the joiner reads or writes.
const DefaultDelimiter = ","

// Comparator orders two records. It returns a negative number when a sorts
// before b, zero when they are equivalent and a positive number otherwise.
type Comparator func(a, b string) int

// KeyPolicy projects a key out of a delimited line and orders lines by it.
// The zero value extracts field 0 using DefaultDelimiter.
type KeyPolicy struct {
	Delimiter string
	Field     int
}

func (p KeyPolicy) delimiter() string {
	if p.Delimiter == "" {
		return DefaultDelimiter
	}
	return p.Delimiter
}

// Key returns the raw text of the key field. A line with fewer fields
// yields the empty key, which sorts first; decoding reports it later.
func (p KeyPolicy) Key(line string) string {
	return field(line, p.delimiter(), p.Field)
}

// Compare orders a and b lexicographically by their key fields.
func (p KeyPolicy) Compare(a, b string) int {
	return strings.Compare(p.Key(a), p.Key(b))
}

// Comparator returns p.Compare as a Comparator.
func (p KeyPolicy) Comparator() Comparator {
	return p.Compare
}

// field returns the i-th delimited field of line without allocating.
func field(line, delim string, i int) string {
	rest := line
	for ; i > 0; i-- {
		idx := strings.Index(rest, delim)
		if idx < 0 {
			return ""
		}
		rest = rest[idx+len(delim):]
	}
	if idx := strings.Index(rest, delim); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// Layout describes where the joiner finds its fields.
type Layout struct {
	Delimiter string

	// Entity lines: key and descriptor.
	EntityKeyField  int
	DescriptorField int

	// Fact lines: key and the value attached to the entity.
	FactKeyField int
	ValueField   int
}

// DefaultLayout matches `id,description` entity lines and `id,date,value` fact lines.
var DefaultLayout = Layout{
	Delimiter:       DefaultDelimiter,
	EntityKeyField:  0,
	DescriptorField: 1,
	FactKeyField:    0,
	ValueField:      2,
}

func (l Layout) delimiter() string {
	if l.Delimiter == "" {
		return DefaultDelimiter
	}
	return l.Delimiter
}

// EntityKey is the key policy entity lines are sorted by.
func (l Layout) EntityKey() KeyPolicy {
	return KeyPolicy{Delimiter: l.delimiter(), Field: l.EntityKeyField}
}

// FactKey is the key policy fact lines are sorted by.
func (l Layout) FactKey() KeyPolicy {
	return KeyPolicy{Delimiter: l.delimiter(), Field: l.FactKeyField}
}
