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

// Package cfgparser reads configuration files in the directive syntax.
//
//	name arg0 "arg 1" {
//	    child0
//	    child1 arg
//	}
//
// Everything after an unquoted '#' is a comment. Environment variables can
// be referenced as {env:NAME}, and {env_split:NAME} expands into several
// arguments split at commas.
package cfgparser

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/foxcpp/mailstream/framework/stream"
	"github.com/foxcpp/mailstream/framework/transport"
)

// Node is a parsed directive or block.
type Node struct {
	// Name is the first word of the directive.
	Name string
	// Args are the words following the name.
	Args []string

	// Children are the directives of the block. nil if the directive has
	// no block, empty for an empty block.
	Children []Node

	// File is the location passed to Read.
	File string
	// Line is the line the directive starts at.
	Line int
}

func NodeErr(node Node, f string, args ...interface{}) error {
	if node.File == "" {
		return fmt.Errorf(f, args...)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, fmt.Sprintf(f, args...))
}

type token struct {
	text   string
	quoted bool
	line   int
	eol    bool
}

func (t token) is(s string) bool {
	return !t.quoted && !t.eol && t.text == s
}

func splitLine(text string, line int, out []token) ([]token, error) {
	var (
		cur     strings.Builder
		inWord  bool
		quoted  bool
		inQuote bool
		escaped bool
	)
	emit := func() {
		if inWord {
			out = append(out, token{text: cur.String(), quoted: quoted, line: line})
		}
		cur.Reset()
		inWord, quoted = false, false
	}

	for _, ch := range text {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case inQuote && ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = !inQuote
			inWord, quoted = true, true
		case inQuote:
			cur.WriteRune(ch)
		case ch == '#' && !inWord:
			emit()
			return append(out, token{line: line, eol: true}), nil
		case unicode.IsSpace(ch):
			emit()
		default:
			inWord = true
			cur.WriteRune(ch)
		}
	}
	if inQuote {
		return out, errors.New("unterminated quoted string")
	}
	emit()
	return append(out, token{line: line, eol: true}), nil
}

func validateName(s string) error {
	if s == "" {
		return errors.New("empty directive name")
	}
	if unicode.IsDigit([]rune(s)[0]) {
		return errors.New("directive name cannot start with a digit")
	}
	for _, ch := range s {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			continue
		}
		switch ch {
		case '.', '-', '_':
			continue
		}
		return errors.New("character not allowed in directive name: " + string(ch))
	}
	return nil
}

type parser struct {
	toks []token
	i    int
	file string
}

func (p *parser) errAt(line int, f string, args ...interface{}) error {
	return NodeErr(Node{File: p.file, Line: line}, f, args...)
}

func (p *parser) skipEOL() {
	for p.i < len(p.toks) && p.toks[p.i].eol {
		p.i++
	}
}

func (p *parser) readNodes(depth, openLine int) ([]Node, error) {
	nodes := []Node{}
	for {
		p.skipEOL()
		if p.i == len(p.toks) {
			if depth != 0 {
				return nil, p.errAt(openLine, "unclosed block")
			}
			return nodes, nil
		}

		tok := p.toks[p.i]
		if tok.is("}") {
			if depth == 0 {
				return nil, p.errAt(tok.line, "unexpected }")
			}
			p.i++
			return nodes, nil
		}

		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
}

func (p *parser) readNode() (Node, error) {
	tok := p.toks[p.i]
	node := Node{Name: tok.text, Args: []string{}, File: p.file, Line: tok.line}
	if tok.is("{") {
		return node, p.errAt(tok.line, "block without a directive name")
	}
	if err := validateName(node.Name); err != nil {
		return node, p.errAt(tok.line, "%v", err)
	}
	p.i++

	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		switch {
		case tok.eol, tok.is("}"):
			return node, nil
		case tok.is("{"):
			p.i++
			children, err := p.readNodes(1, node.Line)
			if err != nil {
				return node, err
			}
			node.Children = children
			return node, nil
		}
		node.Args = append(node.Args, tok.text)
		p.i++
	}
	return node, nil
}

// Read parses the configuration read from r. location is used in error
// messages and stored in Node.File.
func Read(r io.Reader, location string) ([]Node, error) {
	s := stream.New(transport.Reader(r), stream.FlagRead)
	defer s.Destroy()
	if err := s.SetBuffer(stream.BufferLine, 0); err != nil {
		return nil, err
	}

	var (
		toks []token
		line []byte
	)
	for lineNo := 1; ; lineNo++ {
		n, err := s.GetLine(&line)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", location, lineNo, err)
		}
		text := strings.TrimRight(string(line[:n]), "\r\n")
		toks, err = splitLine(text, lineNo, toks)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", location, lineNo, err)
		}
	}

	p := parser{toks: toks, file: location}
	nodes, err := p.readNodes(0, 0)
	if err != nil {
		return nil, err
	}
	return expandEnvironment(nodes), nil
}
