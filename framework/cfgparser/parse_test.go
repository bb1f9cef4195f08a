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

package cfgparser

import (
	"reflect"
	"strings"
	"testing"
)

var cases = []struct {
	name string
	cfg  string
	tree []Node
	fail bool
}{
	{
		"single directive without args",
		`a`,
		[]Node{
			{Name: "a", Args: []string{}, File: "test", Line: 1},
		},
		false,
	},
	{
		"single directive with args",
		`a a1 a2`,
		[]Node{
			{Name: "a", Args: []string{"a1", "a2"}, File: "test", Line: 1},
		},
		false,
	},
	{
		"empty braces",
		`a a1 { }`,
		[]Node{
			{Name: "a", Args: []string{"a1"}, Children: []Node{}, File: "test", Line: 1},
		},
		false,
	},
	{
		"block",
		"buffer line 4K {\n\tsize 1\n\tflag yes no\n}\nnext",
		[]Node{
			{
				Name: "buffer",
				Args: []string{"line", "4K"},
				Children: []Node{
					{Name: "size", Args: []string{"1"}, File: "test", Line: 2},
					{Name: "flag", Args: []string{"yes", "no"}, File: "test", Line: 3},
				},
				File: "test",
				Line: 1,
			},
			{Name: "next", Args: []string{}, File: "test", Line: 5},
		},
		false,
	},
	{
		"block on one line",
		`a { b c }`,
		[]Node{
			{
				Name:     "a",
				Args:     []string{},
				Children: []Node{{Name: "b", Args: []string{"c"}, File: "test", Line: 1}},
				File:     "test",
				Line:     1,
			},
		},
		false,
	},
	{
		"quoted arguments",
		`a "b c" "" "d \"e\""`,
		[]Node{
			{Name: "a", Args: []string{"b c", "", `d "e"`}, File: "test", Line: 1},
		},
		false,
	},
	{
		"unterminated quote",
		`a "b`,
		nil,
		true,
	},
	{
		"unclosed block",
		"a {\nb",
		nil,
		true,
	},
	{
		"stray closing brace",
		"a\n}",
		nil,
		true,
	},
	{
		"block without name",
		"{\n}",
		nil,
		true,
	},
	{
		"name starting with digit",
		"1a",
		nil,
		true,
	},
	{
		"empty config",
		"",
		[]Node{},
		false,
	},
}

func TestRead(t *testing.T) {
	for _, case_ := range cases {
		case_ := case_
		t.Run(case_.name, func(t *testing.T) {
			tree, err := Read(strings.NewReader(case_.cfg), "test")
			if !case_.fail && err != nil {
				t.Fatalf("unexpected parse fail: %v", err)
			}
			if case_.fail {
				if err == nil {
					t.Fatalf("unexpected parse success: %+v", tree)
				}
				return
			}
			if !reflect.DeepEqual(case_.tree, tree) {
				t.Errorf("parsed tree doesn't match expected\ngot:  %#v\nwant: %#v", tree, case_.tree)
			}
		})
	}
}

func TestReadComments(t *testing.T) {
	tree, err := Read(strings.NewReader("# header\r\n\r\na b # trailing\r\nc x#y\r\n"), "test")
	if err != nil {
		t.Fatal(err)
	}
	want := []Node{
		{Name: "a", Args: []string{"b"}, File: "test", Line: 3},
		{Name: "c", Args: []string{"x#y"}, File: "test", Line: 4},
	}
	if !reflect.DeepEqual(tree, want) {
		t.Errorf("got %#v", tree)
	}
}

func TestReadLongLine(t *testing.T) {
	long := strings.Repeat("x", 20000)
	tree, err := Read(strings.NewReader("a "+long+"\nb\n"), "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 2 || tree[0].Args[0] != long || tree[1].Line != 2 {
		t.Errorf("long line not parsed correctly")
	}
}

func TestErrorLocation(t *testing.T) {
	_, err := Read(strings.NewReader("a\nb {\nc\n"), "file.conf")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(err.Error(), "file.conf:2: ") {
		t.Errorf("wrong error location: %v", err)
	}
}

func TestExpandEnvironment(t *testing.T) {
	t.Setenv("MSTREAM_TEST_SIZE", "4K")
	t.Setenv("MSTREAM_TEST_LIST", "in,out")

	tree, err := Read(strings.NewReader(
		"buffer full {env:MSTREAM_TEST_SIZE}\nstats {env_split:MSTREAM_TEST_LIST} reads\nx {env:MSTREAM_TEST_UNSET}y\n"), "test")
	if err != nil {
		t.Fatal(err)
	}
	if got := tree[0].Args; !reflect.DeepEqual(got, []string{"full", "4K"}) {
		t.Errorf("env not expanded: %v", got)
	}
	if got := tree[1].Args; !reflect.DeepEqual(got, []string{"in", "out", "reads"}) {
		t.Errorf("env_split not expanded: %v", got)
	}
	if got := tree[2].Args; !reflect.DeepEqual(got, []string{"y"}) {
		t.Errorf("unset variable not removed: %v", got)
	}
}
