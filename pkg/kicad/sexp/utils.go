package sexp

import (
	"fmt"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp/kicadsexp"
)

// Items returns the elements of a list node, nil for leaves.
func Items(s kicadsexp.Sexp) []kicadsexp.Sexp {
	l, ok := s.(*kicadsexp.List)
	if !ok || l == nil {
		return nil
	}
	return l.Items()
}

// GetNodeName returns the keyword of a list node, e.g. "pin" for (pin ...).
func GetNodeName(s kicadsexp.Sexp) (string, error) {
	switch v := s.(type) {
	case kicadsexp.Symbol:
		return string(v), nil
	case *kicadsexp.List:
		if name := v.Head(); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("expected symbol at head of list")
}

// FindNode returns the first direct child list whose keyword is key.
// Example: FindNode(pin, "at") finds (at 0 3.81 270).
func FindNode(s kicadsexp.Sexp, key string) (kicadsexp.Sexp, bool) {
	for _, item := range Items(s) {
		if l, ok := item.(*kicadsexp.List); ok && l.Head() == key {
			return l, true
		}
	}
	return nil, false
}

// FindAllNodes returns every direct child list whose keyword is key.
func FindAllNodes(s kicadsexp.Sexp, key string) []kicadsexp.Sexp {
	var out []kicadsexp.Sexp
	for _, item := range Items(s) {
		if l, ok := item.(*kicadsexp.List); ok && l.Head() == key {
			out = append(out, l)
		}
	}
	return out
}

// GetString returns the atom at index (0 is the keyword).
func GetString(s kicadsexp.Sexp, index int) (string, error) {
	items := Items(s)
	if index < 0 || index >= len(items) {
		return "", fmt.Errorf("index %d out of bounds (length %d)", index, len(items))
	}
	sym, ok := items[index].(kicadsexp.Symbol)
	if !ok {
		return "", fmt.Errorf("expected atom at index %d, got list", index)
	}
	return string(sym), nil
}

// GetFloat parses the atom at index as a float.
func GetFloat(s kicadsexp.Sexp, index int) (float64, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse float %q: %w", str, err)
	}
	return v, nil
}

// HasSymbol reports whether a bare atom equal to symbol appears among the
// direct children, e.g. the "hide" flag.
func HasSymbol(s kicadsexp.Sexp, symbol string) bool {
	for _, item := range Items(s) {
		if sym, ok := item.(kicadsexp.Symbol); ok && string(sym) == symbol {
			return true
		}
	}
	return false
}

// GetYesNo reads (key yes|no) flags, returning def when absent.
func GetYesNo(s kicadsexp.Sexp, key string, def bool) bool {
	node, ok := FindNode(s, key)
	if !ok {
		return def
	}
	v, err := GetString(node, 1)
	if err != nil {
		return def
	}
	return v == "yes"
}

// GetPosition reads an (at X Y [angle]) node.
func GetPosition(s kicadsexp.Sexp) (PositionAngle, error) {
	if name, _ := GetNodeName(s); name != "at" {
		return PositionAngle{}, fmt.Errorf("expected 'at', got %q", name)
	}
	x, err := GetFloat(s, 1)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse X coordinate: %w", err)
	}
	y, err := GetFloat(s, 2)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse Y coordinate: %w", err)
	}
	pos := PositionAngle{Position: Position{X: x, Y: y}}
	if a, err := GetFloat(s, 3); err == nil {
		pos.Angle = Angle(a)
	}
	return pos, nil
}

// GetXY reads (keyword X Y) nodes such as start, end, center and xy.
func GetXY(s kicadsexp.Sexp) (Position, error) {
	x, err := GetFloat(s, 1)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse X: %w", err)
	}
	y, err := GetFloat(s, 2)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse Y: %w", err)
	}
	return Position{X: x, Y: y}, nil
}

// GetSize reads a (size W H) node.
func GetSize(s kicadsexp.Sexp) (Size, error) {
	p, err := GetXY(s)
	if err != nil {
		return Size{}, err
	}
	return Size{Width: p.X, Height: p.Y}, nil
}

// GetProperty reads (property "key" "value" (at ...) (effects ... hide)).
func GetProperty(s kicadsexp.Sexp) (Property, error) {
	key, err := GetString(s, 1)
	if err != nil {
		return Property{}, fmt.Errorf("failed to parse property key: %w", err)
	}
	value, _ := GetString(s, 2)
	prop := Property{Key: key, Value: value}
	if effects, ok := FindNode(s, "effects"); ok {
		prop.Hide = HasSymbol(effects, "hide") || GetYesNo(effects, "hide", false)
	}
	return prop, nil
}
