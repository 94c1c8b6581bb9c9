package intelligence

import (
	"context"
	"fmt"
)

// mockClient returns a canned analysis for local development without a
// configured analysis service.
type mockClient struct{}

func (c *mockClient) Analyze(_ context.Context, req *Request) (*Analysis, error) {
	summary := fmt.Sprintf("Mock summary of %d messages in %s.", len(req.Messages), req.GroupName)
	score := 0.0

	return &Analysis{
		Summary:        &summary,
		SentimentScore: &score,
	}, nil
}
