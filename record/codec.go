package record

import "strings"

// Header lines of the files the joiner works with.
const (
	EntityHeader = `"ID","DESCRIPTION"`
	FactHeader   = `"ID","DATE","VALUE"`
	OutputHeader = `"PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"`
)

// Entity is a decoded catalog line.
type Entity struct {
	Key        string
	Descriptor string
}

// Fact is a decoded measurement line. Fields other than key and value are dropped.
type Fact struct {
	Key   string
	Value string
}

// Group is one entity together with the values of all facts sharing its key.
type Group struct {
	Key        string
	Descriptor string
	Values     []string
}

// DecodeEntity splits an entity line. Extra fields are ignored.
func (l Layout) DecodeEntity(line string) (Entity, error) {
	fields := strings.Split(line, l.delimiter())
	want := max(l.EntityKeyField, l.DescriptorField) + 1
	if len(fields) < want {
		return Entity{}, &MalformedError{Record: line, Fields: len(fields), Want: want}
	}
	return Entity{Key: fields[l.EntityKeyField], Descriptor: fields[l.DescriptorField]}, nil
}

// DecodeFact splits a fact line. Extra fields are ignored.
func (l Layout) DecodeFact(line string) (Fact, error) {
	fields := strings.Split(line, l.delimiter())
	want := max(l.FactKeyField, l.ValueField) + 1
	if len(fields) < want {
		return Fact{}, &MalformedError{Record: line, Fields: len(fields), Want: want}
	}
	return Fact{Key: fields[l.FactKeyField], Value: fields[l.ValueField]}, nil
}

// AppendTo appends `key<d>descriptor[<d>value]*` to dst, without a line terminator.
func (g Group) AppendTo(dst []byte, delim string) []byte {
	dst = append(dst, g.Key...)
	dst = append(dst, delim...)
	dst = append(dst, g.Descriptor...)
	for _, v := range g.Values {
		dst = append(dst, delim...)
		dst = append(dst, v...)
	}
	return dst
}

// Encode returns the group as a single output line using delim.
func (g Group) Encode(delim string) string {
	return string(g.AppendTo(nil, delim))
}
