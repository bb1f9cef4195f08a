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
	"os"
	"regexp"
	"strings"
)

var (
	envRe      = regexp.MustCompile(`{env:([^\$}]+)}`)
	envSplitRe = regexp.MustCompile(`^{env_split:([^\$}]+)}$`)
)

func expandString(s string) string {
	return envRe.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRe.FindStringSubmatch(m)[1])
	})
}

func expandArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if m := envSplitRe.FindStringSubmatch(arg); m != nil {
			if val, ok := os.LookupEnv(m[1]); ok {
				out = append(out, strings.Split(val, ",")...)
				continue
			}
		}
		out = append(out, expandString(arg))
	}
	return out
}

func expandEnvironment(nodes []Node) []Node {
	// nil means "no block" and is kept as is.
	if nodes == nil {
		return nil
	}

	expanded := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		node.Name = expandString(node.Name)
		node.Args = expandArgs(node.Args)
		node.Children = expandEnvironment(node.Children)
		expanded = append(expanded, node)
	}
	return expanded
}
