package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/philippgille/chromem-go"
)

// QueryType is the natural-language query category the router assigns.
type QueryType string

const (
	QueryStatus         QueryType = "status_query"
	QueryRecommendation QueryType = "recommendation_query"
	QueryExistence      QueryType = "existence_query"
	QueryComplex        QueryType = "complex_query"
)

// Classification is the result of classifying one natural-language query.
type Classification struct {
	Type       QueryType
	SpecID     string
	Confidence float64
}

// confidenceFloor is the threshold below which the router falls back
// to the default "show me status" agent.
const confidenceFloor = 0.6

var specIDRe = regexp.MustCompile(`spec-[a-z0-9]+-\d{3}-[a-z0-9-]+`)

var localPatterns = []struct {
	t    QueryType
	re   *regexp.Regexp
	conf float64
}{
	{QueryStatus, regexp.MustCompile(`(?i)\b(status|progress|where (are|is)|how (far|much))\b`), 0.85},
	{QueryRecommendation, regexp.MustCompile(`(?i)\b(what (should|next)|recommend|what now|next step)\b`), 0.85},
	{QueryExistence, regexp.MustCompile(`(?i)\b(does .* exist|is there a|do we have)\b`), 0.8},
}

// LocalClassifier is the offline, no-network classification tier: a
// direct regex match against known query phrasings.
type LocalClassifier struct{}

// Classify assigns a QueryType and confidence using regex triggers only.
func (LocalClassifier) Classify(text string) Classification {
	c := Classification{Type: QueryComplex, Confidence: 0.3}
	for _, p := range localPatterns {
		if p.re.MatchString(text) {
			c = Classification{Type: p.t, Confidence: p.conf}
			break
		}
	}
	if m := specIDRe.FindString(text); m != "" {
		c.SpecID = m
		c.Confidence += 0.05
		if c.Confidence > 1 {
			c.Confidence = 1
		}
	}
	return c
}

// GatewayClassifier is satisfied by pkg/gateway's completion surface;
// declared here (not imported) to avoid a pkg/workflow -> pkg/gateway
// import cycle, since the gateway in turn depends on workflow metadata.
type GatewayClassifier interface {
	ClassifyQuery(ctx context.Context, text string) (Classification, error)
}

// EmbeddedClassifier is the second, still-local tier: a small labeled
// example set held in an in-memory chromem-go collection, queried by
// nearest neighbor before any network-backed classifier is tried.
type EmbeddedClassifier struct {
	collection *chromem.Collection
}

// NewEmbeddedClassifier seeds a fresh in-memory collection with example
// queries for each QueryType.
func NewEmbeddedClassifier(ctx context.Context) (*EmbeddedClassifier, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("query-classification", nil, hashEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create classification collection: %w", err)
	}

	examples := map[QueryType][]string{
		QueryStatus:         {"what's the status of spec-feature-003-login", "how far along is this bundle", "show me progress"},
		QueryRecommendation: {"what should I do next", "recommend the next workflow", "what's next for this spec"},
		QueryExistence:      {"does a plan exist for this spec", "is there a tasks file yet", "do we have a spec for login"},
	}
	for qt, texts := range examples {
		for i, txt := range texts {
			doc := chromem.Document{
				ID:       fmt.Sprintf("%s-%d", qt, i),
				Content:  txt,
				Metadata: map[string]string{"type": string(qt)},
			}
			if err := collection.AddDocument(ctx, doc); err != nil {
				return nil, fmt.Errorf("seed classification example: %w", err)
			}
		}
	}

	return &EmbeddedClassifier{collection: collection}, nil
}

// Classify returns the nearest labeled example's type and its similarity
// as the confidence score.
func (e *EmbeddedClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	results, err := e.collection.Query(ctx, text, 1, nil, nil)
	if err != nil || len(results) == 0 {
		return Classification{Type: QueryComplex, Confidence: 0}, err
	}
	top := results[0]
	c := Classification{
		Type:       QueryType(top.Metadata["type"]),
		Confidence: float64(top.Similarity),
	}
	if m := specIDRe.FindString(text); m != "" {
		c.SpecID = m
	}
	return c, nil
}

// Classify runs the local tier first, then the embedded tier, then
// falls back to an LLM-backed classifier (typically the gateway) only
// when both local tiers report low confidence. A confidence score
// always accompanies the result, per the routing contract.
func (r *Router) Classify(ctx context.Context, text string, embedded *EmbeddedClassifier, llm GatewayClassifier) (Classification, error) {
	local := LocalClassifier{}.Classify(text)
	if local.Confidence >= confidenceFloor {
		return local, nil
	}

	if embedded != nil {
		if c, err := embedded.Classify(ctx, text); err == nil && c.Confidence >= confidenceFloor {
			if c.SpecID == "" {
				c.SpecID = local.SpecID
			}
			return c, nil
		}
	}

	if llm != nil {
		if c, err := llm.ClassifyQuery(ctx, text); err == nil {
			if c.SpecID == "" {
				c.SpecID = local.SpecID
			}
			return c, nil
		}
	}

	// Default fallback agent: treat low-confidence input as a status query.
	return Classification{Type: QueryStatus, SpecID: local.SpecID, Confidence: local.Confidence}, nil
}

// hashEmbeddingFunc is a deterministic, offline bag-of-words hashing
// embedding: adequate for nearest-neighbor classification against a
// small fixed example set without requiring network access or an API
// key, unlike chromem-go's provider-backed embedding functions.
func hashEmbeddingFunc(_ context.Context, text string) ([]float32, error) {
	const dims = 256
	vec := make([]float32, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv32(word)
		vec[h%dims] += 1
	}
	normalize(vec)
	return vec, nil
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := invSqrt(sum)
	for i := range v {
		v[i] *= inv
	}
}

func invSqrt(x float32) float32 {
	if x <= 0 {
		return 0
	}
	// Newton's method, a few iterations is plenty for this vector size.
	y := x
	for i := 0; i < 8; i++ {
		y = y - (y*y-x)/(2*y)
	}
	return 1 / y
}
