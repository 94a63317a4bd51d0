// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let tests run without an embedding service and give
// deterministic vectors: texts that share words embed close together.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	vec, err := embedder.EmbedText(ctx, "reset your password")
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("503 service unavailable")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
