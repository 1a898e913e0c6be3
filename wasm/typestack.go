package wasm

import (
	"fmt"
	"strings"
)

// ValueTypeUnknown is the polymorphic "don't care" type the validator pushes
// after unreachable code. It never appears in a validated module's sections,
// only in metadata.
const ValueTypeUnknown = ValueType(0xff)

// typeStack is the abstract operand stack the validator interprets each
// function body against. Limits fence off the operands of enclosing blocks
// so inner code cannot pop through its block boundary.
type typeStack struct {
	stack  []ValueType
	limits []int
}

func (s *typeStack) limit() int {
	if len(s.limits) > 0 {
		return s.limits[len(s.limits)-1]
	}
	return 0
}

func (s *typeStack) pop() (ValueType, error) {
	limit := s.limit()
	switch {
	case len(s.stack) == limit+1 && s.stack[limit] == ValueTypeUnknown:
		return ValueTypeUnknown, nil
	case len(s.stack) <= limit:
		return 0, fmt.Errorf("operand stack underflow at height %d with limit %d", len(s.stack), limit)
	default:
		ret := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		return ret, nil
	}
}

func (s *typeStack) popExpecting(expected ValueType) error {
	actual, err := s.pop()
	if err != nil {
		return err
	}
	if actual != expected && actual != ValueTypeUnknown && expected != ValueTypeUnknown {
		return fmt.Errorf("type mismatch: want %s but have %s", expected, actual)
	}
	return nil
}

func (s *typeStack) push(v ValueType) {
	s.stack = append(s.stack, v)
}

// unreachable enters the polymorphic state: the stack down to the current
// limit is replaced with a single unknown that satisfies every pop.
func (s *typeStack) unreachable() {
	s.resetAtLimit()
	s.stack = append(s.stack, ValueTypeUnknown)
}

func (s *typeStack) resetAtLimit() {
	s.stack = s.stack[:s.limit()]
}

func (s *typeStack) pushLimit() {
	s.limits = append(s.limits, len(s.stack))
}

func (s *typeStack) popLimit() {
	if len(s.limits) != 0 {
		s.limits = s.limits[:len(s.limits)-1]
	}
}

// popResults pops the expected result types in reverse declaration order.
// When exact is set, it additionally requires that nothing is left above the
// current limit afterwards.
func (s *typeStack) popResults(expected []ValueType, exact bool) error {
	for i := len(expected) - 1; i >= 0; i-- {
		if err := s.popExpecting(expected[i]); err != nil {
			return err
		}
	}
	if exact {
		limit := s.limit()
		ok := limit == len(s.stack) ||
			(limit+1 == len(s.stack) && s.stack[limit] == ValueTypeUnknown)
		if !ok {
			return fmt.Errorf("leftover operands on the stack: %s", s)
		}
	}
	return nil
}

// snapshot copies the stack above the current frame base for retention in
// function metadata.
func (s *typeStack) snapshot() []ValueType {
	if len(s.stack) == 0 {
		return nil
	}
	ret := make([]ValueType, len(s.stack))
	copy(ret, s.stack)
	return ret
}

func (s *typeStack) String() string {
	strs := make([]string, len(s.stack))
	for i, v := range s.stack {
		if v == ValueTypeUnknown {
			strs[i] = "unknown"
		} else {
			strs[i] = v.String()
		}
	}
	return "[" + strings.Join(strs, " ") + "]"
}
