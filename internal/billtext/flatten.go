package billtext

import "strings"

var bodyElements = []string{"legis-body", "resolution-body"}

// Flatten renders the body of a bill document as plain text. Leaves are
// joined depth-first with single spaces and every top-level unit of the body
// ends with a newline. Documents without a recognized body flatten from the root.
func Flatten(root *Node) string {
	body := root
	for _, name := range bodyElements {
		if found := root.Find(name); found != nil {
			body = found
			break
		}
	}
	if body == nil {
		return ""
	}

	var out strings.Builder
	for _, unit := range topLevelUnits(body) {
		var leaves []string
		walk(unit, func(text string) {
			leaves = append(leaves, text)
		})
		if len(leaves) == 0 {
			continue
		}
		out.WriteString(strings.Join(leaves, " "))
		out.WriteString("\n")
	}
	return out.String()
}

// ParseAndFlatten is Parse followed by Flatten.
func ParseAndFlatten(content []byte) (string, error) {
	root, err := Parse(content)
	if err != nil {
		return "", err
	}
	return Flatten(root), nil
}

func topLevelUnits(body *Node) []*Node {
	var units []*Node
	for _, child := range body.Children {
		if child.Kind == KindArray {
			units = append(units, child.Children...)
			continue
		}
		units = append(units, child)
	}
	return units
}

func walk(node *Node, visit func(string)) {
	switch node.Kind {
	case KindText:
		visit(node.Text)
	case KindElement, KindArray:
		for _, child := range node.Children {
			walk(child, visit)
		}
	}
}
