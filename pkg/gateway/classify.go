package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartspec/smartspec/pkg/workflow"
)

// ClassifyQuery satisfies workflow.GatewayClassifier: it routes a
// natural-language query through the gateway's own Complete path as
// the final classification tier, asking the model to name one of the
// four closed query types and a confidence score.
func (g *Gateway) ClassifyQuery(ctx context.Context, text string) (workflow.Classification, error) {
	resp, err := g.Complete(ctx, "system:classifier", TaskReasoning, PriorityCost, CompletionRequest{
		System: "Classify the user's request as exactly one of: status_query, recommendation_query, existence_query, complex_query. " +
			"Reply with the type name only.",
		Messages:          []Message{{Role: "user", Content: text}},
		ExpectedOutputTok: 8,
	})
	if err != nil {
		return workflow.Classification{}, err
	}

	qt, ok := parseQueryType(resp.Content)
	if !ok {
		return workflow.Classification{}, fmt.Errorf("gateway: classifier returned unrecognized type %q", resp.Content)
	}

	return workflow.Classification{Type: qt, Confidence: 0.7}, nil
}

func parseQueryType(s string) (workflow.QueryType, bool) {
	lower := strings.ToLower(s)
	for _, qt := range []workflow.QueryType{
		workflow.QueryStatus, workflow.QueryRecommendation, workflow.QueryExistence, workflow.QueryComplex,
	} {
		if strings.Contains(lower, string(qt)) {
			return qt, true
		}
	}
	return "", false
}
