package stats

import (
	"fmt"
	"time"
)

// Tag is the type tag of a value returned by the time-series store.
type Tag int

const (
	TagString Tag = iota + 1
	TagLong
	TagUnsignedLong
	TagDouble
	TagBool
	TagTime
)

func (t Tag) String() string {
	switch t {
	case TagString:
		return "string"
	case TagLong:
		return "long"
	case TagUnsignedLong:
		return "unsignedLong"
	case TagDouble:
		return "double"
	case TagBool:
		return "boolean"
	case TagTime:
		return "dateTime"
	default:
		return "invalid"
	}
}

// Value is one tagged cell of a store record. Only the accessor matching the
// tag returns meaningful data.
type Value struct {
	tag Tag
	s   string
	i   int64
	u   uint64
	f   float64
	b   bool
	t   time.Time
}

func String(s string) Value       { return Value{tag: TagString, s: s} }
func Long(i int64) Value          { return Value{tag: TagLong, i: i} }
func UnsignedLong(u uint64) Value { return Value{tag: TagUnsignedLong, u: u} }
func Double(f float64) Value      { return Value{tag: TagDouble, f: f} }
func Bool(b bool) Value           { return Value{tag: TagBool, b: b} }
func Time(t time.Time) Value      { return Value{tag: TagTime, t: t} }

func (v Value) Tag() Tag { return v.tag }

func (v Value) Str() string          { return v.s }
func (v Value) Int() int64           { return v.i }
func (v Value) Uint() uint64         { return v.u }
func (v Value) Float() float64       { return v.f }
func (v Value) Boolean() bool        { return v.b }
func (v Value) Timestamp() time.Time { return v.t }

func (v Value) String() string {
	switch v.tag {
	case TagString:
		return fmt.Sprintf("%q", v.s)
	case TagLong:
		return fmt.Sprintf("%d", v.i)
	case TagUnsignedLong:
		return fmt.Sprintf("%du", v.u)
	case TagDouble:
		return fmt.Sprintf("%g", v.f)
	case TagBool:
		return fmt.Sprintf("%t", v.b)
	case TagTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return "<invalid>"
	}
}

// Record is one row of a store result: field name to tagged value. The store
// enforces no schema on it.
type Record map[string]Value
