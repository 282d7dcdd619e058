package optimizer

import (
	"cmp"
	"slices"

	"github.com/teilomillet/teleprompt/program"
)

type poolEntry struct {
	program *program.Predict
	score   float64
	runs    int
}

// programPool keeps the top-K candidates seen so far plus the baseline, which is never evicted.
// Scores are running means of mini-batch scores.
type programPool struct {
	size     int
	baseline poolEntry
	members  []poolEntry
}

func newProgramPool(size int, baseline *program.Predict, baselineScore float64) *programPool {
	return &programPool{
		size:     size,
		baseline: poolEntry{program: baseline, score: baselineScore, runs: 1},
	}
}

// record adds prog with a new mini-batch score, or folds the score into its running mean.
func (p *programPool) record(prog *program.Predict, score float64) {
	if prog.ID() == p.baseline.program.ID() {
		p.baseline.observe(score)
		return
	}
	for i := range p.members {
		if p.members[i].program.ID() == prog.ID() {
			p.members[i].observe(score)
			p.sort()
			return
		}
	}
	p.members = append(p.members, poolEntry{program: prog, score: score, runs: 1})
	p.sort()
	if len(p.members) > p.size {
		p.members = p.members[:p.size]
	}
}

func (e *poolEntry) observe(score float64) {
	e.runs++
	e.score += (score - e.score) / float64(e.runs)
}

func (p *programPool) sort() {
	slices.SortStableFunc(p.members, func(a, b poolEntry) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.program.NumDemos(), b.program.NumDemos())
	})
}

// entries returns the baseline followed by the members, best first.
func (p *programPool) entries() []poolEntry {
	return append([]poolEntry{p.baseline}, p.members...)
}

func (p *programPool) contains(prog *program.Predict) bool {
	return slices.ContainsFunc(p.entries(), func(e poolEntry) bool {
		return e.program.ID() == prog.ID()
	})
}

// others returns every entry except the one holding exclude.
func (p *programPool) others(exclude *program.Predict) []poolEntry {
	var out []poolEntry
	for _, e := range p.entries() {
		if e.program.ID() != exclude.ID() {
			out = append(out, e)
		}
	}
	return out
}
