package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veilarc/ragfence/pkg/llm"
)

func TestNewAnswerEngine(t *testing.T) {
	engine, err := llm.NewAnswerEngine(llm.AnswerConfig{
		Model:       "testmodel",
		Temperature: 0.5,
		MaxTokens:   256,
		BaseURL:     "http://localhost:1234",
	})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewAnswerEngine_RejectsBadConfig(t *testing.T) {
	_, err := llm.NewAnswerEngine(llm.AnswerConfig{Temperature: 1.5})
	assert.Error(t, err)

	_, err = llm.NewAnswerEngine(llm.AnswerConfig{MaxTokens: -1})
	assert.Error(t, err)
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	})
	assert.NoError(t, err)
	assert.NotNil(t, emb)
}
