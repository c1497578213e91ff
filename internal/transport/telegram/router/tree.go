package router

import (
	"sort"
	"strings"
)

// cmdNode is one token of a command path. Leaves (and some inner nodes)
// carry a Command.
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	return strings.Fields(route)
}

func (r *cmdNode) add(route []string, c Command) *cmdNode {
	cur := r
	for _, tok := range route {
		n, ok := cur.children[tok]
		if !ok {
			n = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = n
		}
		cur = n
	}
	cur.cmd = &c
	return cur
}

func (r *cmdNode) child(name string) (*cmdNode, bool) {
	n, ok := r.children[name]
	return n, ok
}

func (r *cmdNode) childNames() []string {
	out := make([]string, 0, len(r.children))
	for k := range r.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// walk descends from r along args as far as the tree allows and returns
// the node reached, the path taken and the remaining args.
func (r *cmdNode) walk(first string, args []string) (node *cmdNode, path, rest []string) {
	cur, ok := r.child(first)
	if !ok {
		return nil, nil, args
	}
	path = []string{first}
	for len(args) > 0 {
		next, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = next
		path = append(path, args[0])
		args = args[1:]
	}
	return cur, path, args
}
