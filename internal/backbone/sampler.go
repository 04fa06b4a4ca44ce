package backbone

import (
	"math"
	"math/rand/v2"
	"sort"
)

// SamplerConfig controls next-token sampling.
type SamplerConfig struct {
	Temperature float64 // 0 selects the argmax (greedy)
	TopK        int     // 0 disables the top-k cutoff
	TopP        float64 // >= 1 disables nucleus filtering
	Seed        uint64
}

// Sampler draws tokens from a logit distribution. A fixed seed makes the
// draw sequence reproducible across runs.
type Sampler struct {
	cfg SamplerConfig
	rng *rand.Rand
}

func NewSampler(cfg SamplerConfig) *Sampler {
	return &Sampler{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Sample picks the next token id from logits.
func (s *Sampler) Sample(logits []float32) int64 {
	if len(logits) == 0 {
		return 0
	}

	if s.cfg.Temperature <= 0 {
		return argmax(logits)
	}

	type candidate struct {
		id    int64
		logit float64
	}

	cands := make([]candidate, len(logits))
	for i, l := range logits {
		cands[i] = candidate{id: int64(i), logit: float64(l) / s.cfg.Temperature}
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].logit > cands[j].logit })

	if s.cfg.TopK > 0 && s.cfg.TopK < len(cands) {
		cands = cands[:s.cfg.TopK]
	}

	// Softmax over the surviving candidates, anchored at the max logit.
	maxLogit := cands[0].logit
	probs := make([]float64, len(cands))
	var sum float64
	for i, c := range cands {
		p := math.Exp(c.logit - maxLogit)
		probs[i] = p
		sum += p
	}
	for i := range probs {
		probs[i] /= sum
	}

	if s.cfg.TopP > 0 && s.cfg.TopP < 1 {
		var cum float64
		cut := len(probs)
		for i, p := range probs {
			cum += p
			if cum >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
		probs = probs[:cut]
		cands = cands[:cut]

		var renorm float64
		for _, p := range probs {
			renorm += p
		}
		for i := range probs {
			probs[i] /= renorm
		}
	}

	r := s.rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return cands[i].id
		}
	}
	return cands[len(cands)-1].id
}

func argmax(logits []float32) int64 {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return int64(best)
}
