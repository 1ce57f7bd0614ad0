package engine

// Results of processed rules within one evaluation pass, keyed by premise hash. Only results of rules which actually ran are stored: skipped and failed rules never are.
//
// Not safe for concurrent use; each pass owns its own cache.
type PremiseCache struct {
	results map[string]*RuleResult
	hits    int
}

func NewPremiseCache() *PremiseCache {
	return &PremiseCache{results: make(map[string]*RuleResult)}
}

func (pc *PremiseCache) Get(premise string) (*RuleResult, bool) {
	res, ok := pc.results[premise]
	if ok {
		pc.hits++
	}
	return res, ok
}

func (pc *PremiseCache) Put(premise string, res *RuleResult) {
	pc.results[premise] = res
}

func (pc *PremiseCache) Len() int {
	return len(pc.results)
}

func (pc *PremiseCache) Hits() int {
	return pc.hits
}
