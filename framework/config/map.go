/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/foxcpp/mailstream/framework/stream"
)

type matcher struct {
	required   bool
	defaultVal func() (interface{}, error)
	mapper     func(*Map, Node) (interface{}, error)
	store      reflect.Value
}

func (m matcher) assign(val interface{}) {
	if !m.store.IsValid() {
		return
	}
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		v = reflect.Zero(m.store.Type())
	}
	m.store.Set(v)
}

// Map converts directives of a configuration block into variables.
//
// Each directive is registered with one of the typed methods (or Custom)
// and Process then walks the block once, storing the converted values.
type Map struct {
	allowUnknown bool
	entries      map[string]matcher

	// Values holds every value stored by Process, including defaults.
	Values map[string]interface{}

	// Block is the configuration block used by Process.
	Block Node
}

func NewMap(block Node) *Map {
	return &Map{Block: block}
}

// AllowUnknown makes Process return unknown directives instead of failing
// on them.
func (m *Map) AllowUnknown() {
	m.allowUnknown = true
}

func simpleArg(node Node) (string, error) {
	if len(node.Children) != 0 {
		return "", NodeErr(node, "can't declare a block here")
	}
	if len(node.Args) != 1 {
		return "", NodeErr(node, "expected exactly one argument")
	}
	return node.Args[0], nil
}

// Enum maps the directive 'name value' to a string, value must be one of
// allowed.
func (m *Map) Enum(name string, required bool, allowed []string, defaultVal string, store *string) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		arg, err := simpleArg(node)
		if err != nil {
			return nil, err
		}
		for _, a := range allowed {
			if a == arg {
				return arg, nil
			}
		}
		return nil, NodeErr(node, "invalid argument, valid values are: %v", allowed)
	}, store)
}

// EnumMapped is Map.Enum that stores the value mapped to the argument.
func EnumMapped[V any](m *Map, name string, required bool, mapped map[string]V, defaultVal V, store *V) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		arg, err := simpleArg(node)
		if err != nil {
			return nil, err
		}
		val, ok := mapped[arg]
		if !ok {
			valid := make([]string, 0, len(mapped))
			for k := range mapped {
				valid = append(valid, k)
			}
			sort.Strings(valid)
			return nil, NodeErr(node, "invalid argument, valid values are: %v", valid)
		}
		return val, nil
	}, store)
}

// Duration maps the directive 'name duration' to a time.Duration. Multiple
// arguments are concatenated, so 'name 1m 30s' is accepted. Negative
// durations are rejected.
func (m *Map) Duration(name string, required bool, defaultVal time.Duration, store *time.Duration) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) == 0 {
			return nil, NodeErr(node, "at least one argument is required")
		}
		dur, err := time.ParseDuration(strings.Join(node.Args, ""))
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		if dur < 0 {
			return nil, NodeErr(node, "duration must not be negative")
		}
		return dur, nil
	}, store)
}

var sizeUnits = map[string]int64{
	"":  1,
	"B": 1,
	"b": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
}

// ParseDataSize parses a size such as "4K", "1M 512K" or "100". Space
// separated parts are added together.
func ParseDataSize(s string) (int64, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return 0, errors.New("missing a number")
	}

	var total int64
	for _, part := range parts {
		digits := strings.TrimRightFunc(part, func(r rune) bool {
			return r < '0' || r > '9'
		})
		if digits == "" {
			return 0, fmt.Errorf("missing a number: %s", part)
		}
		mult, ok := sizeUnits[part[len(digits):]]
		if !ok {
			return 0, fmt.Errorf("unknown unit suffix: %s", part[len(digits):])
		}
		num, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, err
		}
		if num < 0 {
			return 0, errors.New("value must not be negative")
		}
		if num > (1<<62)/mult {
			return 0, fmt.Errorf("size is too big: %s", part)
		}
		total += num * mult
	}
	return total, nil
}

// DataSize maps the directive 'name size...' to a byte count, see
// ParseDataSize.
func (m *Map) DataSize(name string, required bool, defaultVal int64, store *int64) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		size, err := ParseDataSize(strings.Join(node.Args, " "))
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		return size, nil
	}, store)
}

func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, fmt.Errorf("bool argument should be 'yes' or 'no'")
}

// Bool maps the directive to a bool. A bare 'name' means true, 'name yes'
// and 'name no' are accepted too.
func (m *Map) Bool(name string, defaultVal bool, store *bool) {
	m.Custom(name, false, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		switch len(node.Args) {
		case 0:
			return true, nil
		case 1:
			b, err := ParseBool(node.Args[0])
			if err != nil {
				return nil, NodeErr(node, "%v", err)
			}
			return b, nil
		}
		return nil, NodeErr(node, "expected at most one argument")
	}, store)
}

func (m *Map) Int(name string, required bool, defaultVal int, store *int) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		arg, err := simpleArg(node)
		if err != nil {
			return nil, err
		}
		i, err := strconv.Atoi(arg)
		if err != nil {
			return nil, NodeErr(node, "invalid integer: %s", arg)
		}
		return i, nil
	}, store)
}

func (m *Map) String(name string, required bool, defaultVal string, store *string) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		return simpleArg(node)
	}, store)
}

// BufferPolicy maps the directive 'name none|full|line [size]' to a
// buffering policy. Without a size the stream default is used.
func (m *Map) BufferPolicy(name string, required bool, defaultVal stream.Policy, store *stream.Policy) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) == 0 {
			return nil, NodeErr(node, "expected buffering mode")
		}

		t, err := stream.ParseBufferType(node.Args[0])
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		p := stream.Policy{Type: t}
		if len(node.Args) == 1 {
			return p, nil
		}
		if t == stream.BufferNone {
			return nil, NodeErr(node, "size is not allowed for unbuffered mode")
		}
		size, err := ParseDataSize(strings.Join(node.Args[1:], " "))
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		if size <= 0 || size > 1<<30 {
			return nil, NodeErr(node, "buffer size out of range: %d", size)
		}
		p.Size = int(size)
		return p, nil
	}, store)
}

// StatMask maps the directive 'name kind...' to a set of stream
// statistics. The kind "all" selects every counter.
func (m *Map) StatMask(name string, defaultVal stream.StatMask, store *stream.StatMask) {
	m.Custom(name, false, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) == 0 {
			return stream.StatMaskAll, nil
		}

		var mask stream.StatMask
		for _, arg := range node.Args {
			if arg == "all" {
				mask = stream.StatMaskAll
				continue
			}
			k, ok := stream.StatByName(arg)
			if !ok {
				return nil, NodeErr(node, "unknown statistics kind: %s", arg)
			}
			mask |= stream.StatMaskOf(k)
		}
		return mask, nil
	}, store)
}

// Custom registers a directive with a user-provided conversion.
//
// If the directive is missing from the block, defaultVal is used, or
// Process fails if required is set. defaultVal may be nil for required
// directives. mapper converts the directive into a value and must not
// modify the node.
//
// store must be a pointer to a variable the result can be assigned to, or
// nil to only keep the value in Map.Values.
func (m *Map) Custom(name string, required bool, defaultVal func() (interface{}, error), mapper func(*Map, Node) (interface{}, error), store interface{}) {
	if m.entries == nil {
		m.entries = make(map[string]matcher)
	}
	if _, ok := m.entries[name]; ok {
		panic("config.Map: duplicate directive " + name)
	}

	var target reflect.Value
	if ptr := reflect.ValueOf(store); ptr.IsValid() && !ptr.IsNil() {
		target = ptr.Elem()
		if !target.CanSet() {
			panic("config.Map: store must be a pointer")
		}
	}

	m.entries[name] = matcher{
		required:   required,
		defaultVal: defaultVal,
		mapper:     mapper,
		store:      target,
	}
}

// Process converts the directives of Map.Block. With AllowUnknown set,
// directives that were not registered are returned.
func (m *Map) Process() (unknown []Node, err error) {
	m.Values = make(map[string]interface{}, len(m.entries))
	seen := make(map[string]bool, len(m.Block.Children))

	for _, node := range m.Block.Children {
		ent, ok := m.entries[node.Name]
		if !ok {
			if !m.allowUnknown {
				return nil, NodeErr(node, "unexpected directive: %s", node.Name)
			}
			unknown = append(unknown, node)
			continue
		}
		if seen[node.Name] {
			return nil, NodeErr(node, "duplicate directive: %s", node.Name)
		}
		seen[node.Name] = true

		val, err := ent.mapper(m, node)
		if err != nil {
			return nil, err
		}
		m.Values[node.Name] = val
		ent.assign(val)
	}

	for name, ent := range m.entries {
		if seen[name] {
			continue
		}
		if ent.required {
			return nil, NodeErr(m.Block, "missing required directive: %s", name)
		}
		if ent.defaultVal == nil {
			continue
		}
		val, err := ent.defaultVal()
		if err != nil {
			return nil, err
		}
		m.Values[name] = val
		ent.assign(val)
	}

	return unknown, nil
}
