package symbolic

// PathCondition is the ordered list of predicates branched on so far in a
// symbolic run, each already oriented the way it was actually taken (the
// raw condition when the true arm was taken, Not(condition) when the false
// arm was taken).
type PathCondition struct {
	Constraints []*Expr
}

// Assert appends e, the already-oriented predicate for the branch just
// taken.
func (p *PathCondition) Assert(e *Expr) { p.Constraints = append(p.Constraints, e) }

// Len reports how many branches have been recorded.
func (p *PathCondition) Len() int { return len(p.Constraints) }
