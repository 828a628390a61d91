package query_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/pkg/audit"
	"github.com/veilarc/ragfence/pkg/chunker"
	"github.com/veilarc/ragfence/pkg/ingest"
	"github.com/veilarc/ragfence/pkg/query"
	"github.com/veilarc/ragfence/pkg/registry"
	"github.com/veilarc/ragfence/pkg/sensitivity"
	"github.com/veilarc/ragfence/pkg/store"
	"go.uber.org/zap"
)

// fakeEmbedder maps text to its letter-frequency histogram, so a question
// dominated by one letter ranks the chunk where that letter clusters first.
type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

// echoAnswerEngine records the context pack it was handed and returns a
// canned answer.
type echoAnswerEngine struct {
	lastContext string
}

func (e *echoAnswerEngine) Answer(_ context.Context, _ string, contextPack string) (string, error) {
	e.lastContext = contextPack
	return "canned answer", nil
}

type failingAnswerEngine struct{}

func (failingAnswerEngine) Answer(context.Context, string, string) (string, error) {
	return "", errors.New("model backend unreachable")
}

type fixture struct {
	pipeline *ingest.Pipeline
	service  *query.Service
	answers  *echoAnswerEngine
	recorder *audit.MemoryRecorder
	emitter  *audit.Emitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ch, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 900, Overlap: 150})
	require.NoError(t, err)

	vs := store.NewMemoryStore()
	require.NoError(t, vs.Init(context.Background(), 26))

	pipeline := ingest.NewPipeline(ingest.PipelineConfig{}, registry.NewMemoryRegistry(), ch,
		sensitivity.New(nil), fakeEmbedder{}, vs, zap.NewNop())

	answers := &echoAnswerEngine{}
	recorder := audit.NewMemoryRecorder()
	emitter := audit.NewEmitter(recorder, zap.NewNop())
	service := query.NewService(query.ServiceConfig{TopK: 10}, fakeEmbedder{}, vs, answers, emitter, zap.NewNop())

	return &fixture{pipeline: pipeline, service: service, answers: answers, recorder: recorder, emitter: emitter}
}

func t1Member() models.Identity {
	return models.Identity{UserID: 2, TenantID: "t1", Role: models.RoleMember}
}

func TestAnswer_CitesTheRelevantChunk(t *testing.T) {
	f := newFixture(t)

	// The q-run lands entirely inside the second window (offset 750).
	text := strings.Repeat("a", 1000) + strings.Repeat("q", 400) + strings.Repeat("a", 600)
	res, err := f.pipeline.Ingest(context.Background(), t1Member(), ingest.Request{Title: "handbook", RawText: text})
	require.NoError(t, err)

	resp, err := f.service.Answer(context.Background(), t1Member(), strings.Repeat("q", 40))
	require.NoError(t, err)

	assert.Equal(t, "canned answer", resp.Answer)
	require.NotEmpty(t, resp.Citations)
	top := resp.Citations[0]
	assert.Equal(t, res.DocID, top.DocID)
	assert.Equal(t, "handbook", top.Title)
	assert.Equal(t, 1, top.ChunkID)

	assert.Len(t, top.Snippet, 220+len("..."))
	assert.True(t, strings.HasSuffix(top.Snippet, "..."))

	assert.Contains(t, f.answers.lastContext, "[doc:"+res.DocID+" chunk:1]")
}

func TestAnswer_SnippetTruncatesOnRuneBoundaries(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), t1Member(), ingest.Request{
		Title:   "accents",
		RawText: strings.Repeat("é", 600),
	})
	require.NoError(t, err)

	resp, err := f.service.Answer(context.Background(), t1Member(), "anything")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Citations)

	snip := resp.Citations[0].Snippet
	assert.True(t, utf8.ValidString(snip), "snippet must not split a multibyte rune: %q", snip)
	assert.Equal(t, 220+len("..."), utf8.RuneCountInString(snip))
	assert.True(t, strings.HasSuffix(snip, "..."))
}

func TestAnswer_VisibilityByIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roles := []string{"member", "admin"}
	docs := []ingest.Request{
		{Title: "handbook", RolesAllowed: roles, RawText: strings.Repeat("h", 300)},
		{Title: "salaries", RolesAllowed: roles, RawText: strings.Repeat("s", 300), SensitiveFlag: true},
		{Title: "board-notes", RolesAllowed: roles, RawText: strings.Repeat("b", 300), AllowedUsers: []int64{5}},
		{Title: "eng-wiki", RolesAllowed: roles, RawText: strings.Repeat("e", 300), AllowedGroups: []string{"eng"}},
	}
	for _, d := range docs {
		_, err := f.pipeline.Ingest(ctx, t1Member(), d)
		require.NoError(t, err)
	}

	cases := []struct {
		name     string
		identity models.Identity
		want     []string
	}{
		{"plain member", models.Identity{UserID: 2, TenantID: "t1", Role: models.RoleMember},
			[]string{"handbook"}},
		{"admin sees sensitive but allow-lists still bind", models.Identity{UserID: 1, TenantID: "t1", Role: models.RoleAdmin},
			[]string{"handbook", "salaries"}},
		{"listed user", models.Identity{UserID: 5, TenantID: "t1", Role: models.RoleMember},
			[]string{"board-notes", "handbook"}},
		{"group member", models.Identity{UserID: 3, TenantID: "t1", Role: models.RoleMember, Groups: []string{"eng"}},
			[]string{"eng-wiki", "handbook"}},
		{"other tenant", models.Identity{UserID: 9, TenantID: "t2", Role: models.RoleAdmin},
			nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := f.service.Answer(ctx, tc.identity, "which documents exist")
			require.NoError(t, err)

			var got []string
			for _, c := range resp.Citations {
				if c.DocID == "none" {
					continue
				}
				got = append(got, c.Title)
			}
			sort.Strings(got)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAnswer_SensitiveHiddenFromMembersVisibleToAdmins(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), t1Member(), ingest.Request{
		Title:         "salaries",
		RolesAllowed:  []string{"member", "admin"},
		RawText:       strings.Repeat("z", 600),
		SensitiveFlag: true,
	})
	require.NoError(t, err)

	resp, err := f.service.Answer(context.Background(), t1Member(), "zzzz")
	require.NoError(t, err)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "none", resp.Citations[0].DocID)
	assert.Equal(t, "No authorized context found.", resp.Citations[0].Snippet)
	assert.Equal(t, "NO_CONTEXT", f.answers.lastContext)

	admin := models.Identity{UserID: 1, TenantID: "t1", Role: models.RoleAdmin}
	resp, err = f.service.Answer(context.Background(), admin, "zzzz")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Citations)
	assert.Equal(t, "salaries", resp.Citations[0].Title)
	assert.NotEqual(t, "NO_CONTEXT", f.answers.lastContext)
}

func TestAnswer_TenantIsolation(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), t1Member(), ingest.Request{
		Title:   "internal",
		RawText: strings.Repeat("m", 600),
	})
	require.NoError(t, err)

	outsider := models.Identity{UserID: 9, TenantID: "t2", Role: models.RoleAdmin}
	resp, err := f.service.Answer(context.Background(), outsider, "mmmm")
	require.NoError(t, err)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "none", resp.Citations[0].DocID)
	assert.Equal(t, "NO_CONTEXT", f.answers.lastContext)
}

func TestAnswer_AuditsRetrievedChunks(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Ingest(context.Background(), t1Member(), ingest.Request{
		Title:   "policy",
		RawText: strings.Repeat("k", 2000),
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), t1Member(), "kkkk")
	require.NoError(t, err)
	f.emitter.Wait()

	events, err := f.recorder.List(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].UserID)
	assert.Equal(t, "kkkk", events[0].Question)
	require.NotEmpty(t, events[0].Retrieved)
	for _, ref := range events[0].Retrieved {
		assert.Equal(t, res.DocID, ref.DocID)
	}
}

func TestAnswer_EmptyRetrievalIsStillAudited(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Answer(context.Background(), t1Member(), "anything")
	require.NoError(t, err)
	f.emitter.Wait()

	events, err := f.recorder.List(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Retrieved)
}

type emptyEmbedder struct{}

func (emptyEmbedder) CreateEmbedding(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func TestAnswer_EmbedderReturningNoVectorsIsAnError(t *testing.T) {
	f := newFixture(t)
	svc := query.NewService(query.ServiceConfig{}, emptyEmbedder{}, store.NewMemoryStore(), f.answers, f.emitter, zap.NewNop())

	_, err := svc.Answer(context.Background(), t1Member(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder returned 0 vectors")
}

func TestAnswer_GenerationFailureIsAnError(t *testing.T) {
	f := newFixture(t)
	svc := query.NewService(query.ServiceConfig{}, fakeEmbedder{}, store.NewMemoryStore(), failingAnswerEngine{}, f.emitter, zap.NewNop())

	_, err := svc.Answer(context.Background(), t1Member(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate answer")
}
