package risk

import "execution-sim-go/sim"

// BuildGuards 组装默认的准入链：结构 -> 最坏成交 -> 额度，extra 追加在末尾。
func BuildGuards(profiles *sim.ProfileSet, extra ...Guard) Guard {
	guards := []Guard{
		StructureGuard{},
		WorstCaseGuard{Profiles: profiles},
		LimitGuard{},
	}
	guards = append(guards, extra...)
	return MultiGuard{Guards: guards}
}
