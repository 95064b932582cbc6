package msr

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Node is an element (or a text run) of an API response body.
// Element names are lower-cased, so "memberUri" is found as "memberuri".
type Node struct {
	Name     string // empty for text runs
	data     string
	children []*Node
}

// Parse reads a response body into a tree. The API's XML is tokenized
// leniently: unknown elements, stray end tags and the XML prolog are
// tolerated, and self-closing elements become empty nodes.
func Parse(r io.Reader) (*Node, error) {
	z := html.NewTokenizer(r)
	z.AllowCDATA(true)

	root := &Node{}
	stack := []*Node{root}
	for {
		tt := z.Next()
		top := stack[len(stack)-1]
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return root, nil
			}
			return nil, fmt.Errorf("failed to parse response body: %w", z.Err())
		case html.TextToken:
			top.children = append(top.children, &Node{data: string(z.Text())})
		case html.StartTagToken:
			name, _ := z.TagName()
			n := &Node{Name: string(name)}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			top.children = append(top.children, &Node{Name: string(name)})
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Name == string(name) {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// FindAll returns every descendant element with the given name, in document order.
func (n *Node) FindAll(name string) []*Node {
	if n == nil {
		return nil
	}
	name = strings.ToLower(name)
	var out []*Node
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			if c.Name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// Field returns the first descendant element with the given name, or nil.
func (n *Node) Field(name string) *Node {
	if n == nil {
		return nil
	}
	name = strings.ToLower(name)
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
		if f := c.Field(name); f != nil {
			return f
		}
	}
	return nil
}

// Text concatenates all text below n. A nil node has no text.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	if n.Name == "" && len(n.children) == 0 {
		return n.data
	}
	var b strings.Builder
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			if c.Name == "" {
				b.WriteString(c.data)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
