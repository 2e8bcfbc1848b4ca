package seccomp

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRules parses a filter string (without the mode-flipping prefix,
// which the option parser strips) into the rule list.
func ParseRules(s string) ([]Rule, error) {
	var rules []Rule
	for _, part := range splitRules(s) {
		r, err := parseRule(part)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// splitRules splits on commas that are not inside an argument bracket
func splitRules(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func parseRule(s string) (Rule, error) {
	r := Rule{Action: ActionDefault}

	// action suffix; the colon cannot appear inside the bracket
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		switch s[i+1:] {
		case "k":
			r.Action = ActionKill
		case "e":
			r.Action = ActionEperm
		case "a":
			r.Action = ActionAllow
		default:
			return r, fmt.Errorf("seccomp: invalid action suffix %q in rule %q", s[i+1:], s)
		}
		s = s[:i]
	}

	if i := strings.IndexByte(s, '['); i >= 0 {
		if s[len(s)-1] != ']' {
			return r, fmt.Errorf("seccomp: unbalanced bracket in rule %q", s)
		}
		conds, err := parseConds(s[i+1 : len(s)-1])
		if err != nil {
			return r, err
		}
		r.Conds = conds
		s = s[:i]
	}

	if !validSyscallName(s) {
		return r, fmt.Errorf("seccomp: invalid syscall name %q", s)
	}
	r.Name = s
	return r, nil
}

func parseConds(s string) ([]ArgCond, error) {
	var conds []ArgCond
	for _, part := range strings.Split(s, ",") {
		c, err := parseCond(part)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseCond(s string) (ArgCond, error) {
	var c ArgCond
	if len(s) < 3 {
		return c, fmt.Errorf("seccomp: invalid argument rule %q", s)
	}
	if s[0] < 'a' || s[0] > 'f' {
		return c, fmt.Errorf("seccomp: invalid argument name %q in %q", s[:1], s)
	}
	c.Arg = int(s[0] - 'a')
	s = s[1:]

	// bitwise-and form: & number = number
	if s[0] == '&' {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return c, fmt.Errorf("seccomp: mask rule %q misses '='", s)
		}
		mask, err := parseNumber(s[1:eq])
		if err != nil {
			return c, err
		}
		value, err := parseNumber(strings.TrimPrefix(s[eq+1:], "="))
		if err != nil {
			return c, err
		}
		c.Op, c.Mask, c.Value = OpMaskedEqual, mask, value
		return c, nil
	}

	ops := []struct {
		tok string
		op  ArgOp
	}{
		// longest first so '>=' is not read as '>'
		{"==", OpEqual},
		{"!=", OpNotEqual},
		{">=", OpGreaterEqual},
		{"<=", OpLessEqual},
		{"=", OpEqual},
		{"!", OpNotEqual},
		{">", OpGreater},
		{"<", OpLess},
	}
	for _, o := range ops {
		if strings.HasPrefix(s, o.tok) {
			v, err := parseNumber(s[len(o.tok):])
			if err != nil {
				return c, err
			}
			c.Op, c.Value = o.op, v
			return c, nil
		}
	}
	return c, fmt.Errorf("seccomp: invalid operator in argument rule %q", s)
}

func parseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("seccomp: empty number")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seccomp: invalid number %q", s)
	}
	return v, nil
}

// validSyscallName accepts syscall names only; numeric identifiers are
// not resolvable through the policy table
func validSyscallName(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}
