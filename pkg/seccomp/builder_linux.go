package seccomp

import (
	"fmt"
	"math/bits"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Builder compiles parsed rules into the BPF filter
type Builder struct {
	Mode  Mode
	Rules []Rule
}

// Build assembles the filter. A blacklist with no rules means nothing
// to enforce, reported as a nil filter.
func (b *Builder) Build() (Filter, error) {
	if len(b.Rules) == 0 {
		if b.Mode == ModeWhitelist {
			return nil, fmt.Errorf("seccomp: whitelist with empty rule list forbids all syscalls")
		}
		return nil, nil
	}

	policy := libseccomp.Policy{
		DefaultAction: defaultAction(b.Mode),
	}
	for _, r := range b.Rules {
		g, err := ruleGroup(r, b.Mode)
		if err != nil {
			return nil, err
		}
		policy.Syscalls = append(policy.Syscalls, g)
	}

	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble: %w", err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble raw: %w", err)
	}
	filter := make(Filter, 0, len(raw))
	for _, in := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: in.Op,
			Jt:   in.Jt,
			Jf:   in.Jf,
			K:    in.K,
		})
	}
	return filter, nil
}

// actionEperm composes the errno return value into the action the way
// SECCOMP_RET_DATA carries it
var actionEperm = libseccomp.Action(uint32(libseccomp.ActionErrno) | uint32(syscall.EPERM)&0xffff)

func defaultAction(m Mode) libseccomp.Action {
	if m == ModeWhitelist {
		return actionEperm
	}
	return libseccomp.ActionAllow
}

func ruleAction(a RuleAction, m Mode) libseccomp.Action {
	switch a {
	case ActionKill:
		return libseccomp.ActionKillProcess
	case ActionEperm:
		return actionEperm
	case ActionAllow:
		return libseccomp.ActionAllow
	}
	// listed syscalls flip the mode default
	if m == ModeWhitelist {
		return libseccomp.ActionAllow
	}
	return actionEperm
}

func ruleGroup(r Rule, m Mode) (libseccomp.SyscallGroup, error) {
	g := libseccomp.SyscallGroup{
		Action: ruleAction(r.Action, m),
	}
	if len(r.Conds) == 0 {
		g.Names = []string{r.Name}
		return g, nil
	}
	conds := make([]libseccomp.Condition, 0, len(r.Conds))
	for _, c := range r.Conds {
		lc, err := condition(c)
		if err != nil {
			return g, err
		}
		conds = append(conds, lc)
	}
	g.NamesWithCondtions = []libseccomp.NameWithConditions{
		{Name: r.Name, Conditions: conds},
	}
	return g, nil
}

func condition(c ArgCond) (libseccomp.Condition, error) {
	lc := libseccomp.Condition{Argument: uint32(c.Arg), Value: c.Value}
	switch c.Op {
	case OpEqual:
		lc.Operation = libseccomp.Equal
	case OpNotEqual:
		lc.Operation = libseccomp.NotEqual
	case OpGreater:
		lc.Operation = libseccomp.GreaterThan
	case OpLess:
		lc.Operation = libseccomp.LessThan
	case OpGreaterEqual:
		lc.Operation = libseccomp.GreaterOrEqual
	case OpLessEqual:
		lc.Operation = libseccomp.LessOrEqual
	case OpMaskedEqual:
		// the program model offers bit tests, not a general masked
		// compare; translate the exactly expressible cases
		switch {
		case c.Value == 0:
			lc.Operation = libseccomp.BitsNotSet
			lc.Value = c.Mask
		case c.Value == c.Mask && bits.OnesCount64(c.Mask) == 1:
			lc.Operation = libseccomp.BitsSet
			lc.Value = c.Mask
		default:
			return lc, fmt.Errorf("seccomp: mask condition &%d=%d is not expressible", c.Mask, c.Value)
		}
	default:
		return lc, fmt.Errorf("seccomp: unknown operator %d", c.Op)
	}
	return lc, nil
}
