package scoring

// Source classification tables. Scores in sourceObscurity follow the
// rule that preprint, code and academic venues read as obscure (60-80)
// while social amplification channels read as mainstream (~20).
var sourceObscurity = map[string]float64{
	"arxiv":           80,
	"biorxiv":         75,
	"medrxiv":         75,
	"openreview":      70,
	"semanticscholar": 65,
	"github":          60,
	"gitlab":          60,
	"huggingface":     60,
	"hackernews":      25,
	"reddit":          20,
	"twitter":         20,
	"x":               20,
	"bluesky":         20,
	"mastodon":        20,
}

const defaultSourceObscurity = 40

var preprintSources = map[string]bool{
	"arxiv":      true,
	"biorxiv":    true,
	"medrxiv":    true,
	"openreview": true,
}

var codeSources = map[string]bool{
	"github":      true,
	"gitlab":      true,
	"huggingface": true,
}

// highTrustSources gate the cross-source bonus in the discovery score.
var highTrustSources = map[string]bool{
	"arxiv":       true,
	"biorxiv":     true,
	"medrxiv":     true,
	"openreview":  true,
	"github":      true,
	"gitlab":      true,
	"huggingface": true,
}

// academicPlatforms mark linked accounts that raise the obscurity
// signal (researchers active on academic platforms rather than social
// ones tend to be under-amplified).
var academicPlatforms = map[string]bool{
	"googlescholar":   true,
	"orcid":           true,
	"openreview":      true,
	"semanticscholar": true,
	"researchgate":    true,
}

// viralVocabulary lowers obscurity: hype language correlates with
// content that is already being amplified.
var viralVocabulary = []string{
	"amazing",
	"revolutionary",
	"game-changing",
	"mind-blowing",
	"breakthrough",
	"insane",
	"viral",
	"must-see",
	"unbelievable",
}

// technicalVocabulary raises obscurity slightly: dense technical
// language correlates with under-amplified work.
var technicalVocabulary = []string{
	"theorem",
	"convergence",
	"gradient",
	"eigenvalue",
	"manifold",
	"stochastic",
	"variational",
	"asymptotic",
	"regularization",
	"tractable",
	"posterior",
	"ablation",
	"lemma",
	"invariant",
	"estimator",
}
