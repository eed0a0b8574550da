// Package billtext parses legislative XML into a typed tree and flattens it to plain text.
package billtext

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyDocument is returned when the input has no root element.
var ErrEmptyDocument = errors.New("billtext: document has no root element")

// Kind tags a node of the document tree.
type Kind int

const (
	// KindElement is a single XML element.
	KindElement Kind = iota
	// KindArray groups consecutive sibling elements sharing a name.
	KindArray
	// KindText is a trimmed, non-empty character run.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindArray:
		return "array"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is one node of the parsed document.
type Node struct {
	Kind Kind
	// Name is the element name for elements and arrays.
	Name string
	// Text is set for text nodes only.
	Text     string
	Children []*Node
}

// Parse decodes content into a tree rooted at the document element.
func Parse(content []byte) (*Node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	var root *Node
	var stack []*Node

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("billtext: decode: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := &Node{Kind: KindElement, Name: t.Name.Local}
			if len(stack) == 0 {
				if root == nil {
					root = node
				}
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			closed.Children = groupSiblings(closed.Children)

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			text := strings.Join(strings.Fields(string(t)), " ")
			if text == "" {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &Node{Kind: KindText, Text: text})
		}
	}

	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// groupSiblings folds runs of same-named elements into array nodes.
func groupSiblings(children []*Node) []*Node {
	if len(children) < 2 {
		return children
	}
	grouped := make([]*Node, 0, len(children))
	for i := 0; i < len(children); {
		child := children[i]
		if child.Kind != KindElement {
			grouped = append(grouped, child)
			i++
			continue
		}
		j := i + 1
		for j < len(children) && children[j].Kind == KindElement && children[j].Name == child.Name {
			j++
		}
		if j-i == 1 {
			grouped = append(grouped, child)
		} else {
			items := make([]*Node, j-i)
			copy(items, children[i:j])
			grouped = append(grouped, &Node{Kind: KindArray, Name: child.Name, Children: items})
		}
		i = j
	}
	return grouped
}

// Find returns the first element with the given name in depth-first order.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Kind == KindElement && n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}
