package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/perbu/ragchat/pkg/completion"
	"github.com/perbu/ragchat/pkg/embedder"
	"github.com/perbu/ragchat/pkg/knowledge"
	"github.com/perbu/ragchat/pkg/observability"
	"github.com/perbu/ragchat/pkg/prompt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct {
	embedder.Embedder
}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  completion.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

var assembler = prompt.Assembler{AssistantName: "Amal", Organization: "An-Nisa Hope Center", SiteName: "annisa.org"}

var corpus = []struct {
	text string
	url  string
}{
	{"The food pantry is open every Saturday morning for families in need.", "https://annisa.org/food-pantry"},
	{"Volunteer with An-Nisa in education, mentorship, events and youth programs.", "https://annisa.org/volunteer"},
	{"Confidential domestic violence assistance including safety planning.", "https://annisa.org/family-violence"},
	{"Donations support counseling and mental health services.", "https://annisa.org/donate"},
}

func buildKB(t *testing.T, emb embedder.Embedder) *knowledge.KnowledgeBase {
	t.Helper()
	texts := make([]string, len(corpus))
	meta := make([]knowledge.ChunkMetadata, len(corpus))
	for i, c := range corpus {
		texts[i] = c.text
		meta[i] = knowledge.ChunkMetadata{SourceURL: c.url, Title: "page", OriginTag: "annisa.org"}
	}
	vecs, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)

	kb, err := knowledge.New(&knowledge.Snapshot{
		Chunks:     texts,
		Embeddings: vecs,
		Metadata:   meta,
		ModelInfo:  emb.ModelInfo(),
		Dimension:  emb.Dimension(),
	})
	require.NoError(t, err)
	return kb
}

func emptyKB(t *testing.T) *knowledge.KnowledgeBase {
	t.Helper()
	kb, err := knowledge.New(nil)
	require.NoError(t, err)
	return kb
}

func newService(t *testing.T, kb *knowledge.KnowledgeBase, emb embedder.Embedder, comp completion.Completer) (*Service, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	svc, err := NewService(kb, emb, comp, assembler, DefaultOptions(), nil, metrics)
	require.NoError(t, err)
	return svc, metrics
}

func TestAnswerSuccess(t *testing.T) {
	emb := embedder.NewHashEmbedder(256)
	comp := &fakeCompleter{reply: "Our food pantry opens on Saturday mornings."}
	svc, metrics := newService(t, buildKB(t, emb), emb, comp)

	reply, err := svc.Answer(context.Background(), "  When is the food pantry open?  ")
	require.NoError(t, err)
	assert.Equal(t, "Our food pantry opens on Saturday mornings.", reply.Response)
	assert.GreaterOrEqual(t, reply.ChunksUsed, 1)
	assert.LessOrEqual(t, reply.ChunksUsed, 3)

	assert.Equal(t, 1, comp.calls)
	assert.Contains(t, comp.last.User, "https://annisa.org/food-pantry")
	assert.Contains(t, comp.last.User, "Question: When is the food pantry open?")
	assert.Equal(t, 500, comp.last.MaxTokens)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChatRequests.WithLabelValues("answered")))
}

func TestAnswerInvalidInput(t *testing.T) {
	emb := embedder.NewHashEmbedder(64)
	comp := &fakeCompleter{}
	svc, _ := newService(t, buildKB(t, emb), emb, comp)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Answer(context.Background(), msg)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Equal(t, 0, comp.calls)
}

func TestAnswerEmptyKnowledgeBase(t *testing.T) {
	comp := &fakeCompleter{reply: "unused"}
	svc, _ := newService(t, emptyKB(t), embedder.NewHashEmbedder(64), comp)

	reply, err := svc.Answer(context.Background(), "Who are you?")
	require.NoError(t, err)
	assert.Equal(t, svc.NoInformationMessage(), reply.Response)
	assert.Equal(t, 0, reply.ChunksUsed)
	assert.Equal(t, 0, comp.calls)
}

func TestAnswerNothingAboveThreshold(t *testing.T) {
	emb := embedder.NewHashEmbedder(256)
	comp := &fakeCompleter{reply: "unused"}
	svc, _ := newService(t, buildKB(t, emb), emb, comp)

	reply, err := svc.Answer(context.Background(), "quantum chromodynamics lattice")
	require.NoError(t, err)
	assert.Equal(t, svc.NoInformationMessage(), reply.Response)
	assert.Equal(t, 0, reply.ChunksUsed)
	assert.Equal(t, 0, comp.calls)
}

func TestAnswerCompletionFailure(t *testing.T) {
	emb := embedder.NewHashEmbedder(256)
	comp := &fakeCompleter{err: completion.ErrCompletionFailed}
	svc, metrics := newService(t, buildKB(t, emb), emb, comp)

	reply, err := svc.Answer(context.Background(), "How can I volunteer?")
	require.NoError(t, err)
	assert.Equal(t, svc.ApologyMessage(), reply.Response)
	assert.Greater(t, reply.ChunksUsed, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("completion")))
}

func TestAnswerEmbeddingFailure(t *testing.T) {
	hash := embedder.NewHashEmbedder(64)
	kb := buildKB(t, hash)
	comp := &fakeCompleter{}
	svc, metrics := newService(t, kb, failingEmbedder{hash}, comp)

	reply, err := svc.Answer(context.Background(), "How can I volunteer?")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, svc.UnavailableMessage(), reply.Response)
	assert.Equal(t, 0, comp.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackendFailures.WithLabelValues("embedding")))
}

func TestSearch(t *testing.T) {
	emb := embedder.NewHashEmbedder(256)
	svc, _ := newService(t, buildKB(t, emb), emb, &fakeCompleter{})

	results, err := svc.Search(context.Background(), "domestic violence safety planning")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	assert.Equal(t, "https://annisa.org/family-violence", results[0].Metadata.SourceURL)
	assert.Equal(t, 1, results[0].Rank)

	_, err = svc.Search(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStatsAndReload(t *testing.T) {
	emb := embedder.NewHashEmbedder(64)
	svc, metrics := newService(t, emptyKB(t), emb, &fakeCompleter{})

	loaded, n := svc.Stats()
	assert.False(t, loaded)
	assert.Equal(t, 0, n)

	require.NoError(t, svc.Reload(buildKB(t, emb)))
	loaded, n = svc.Stats()
	assert.True(t, loaded)
	assert.Equal(t, len(corpus), n)
	assert.Equal(t, float64(len(corpus)), testutil.ToFloat64(metrics.KnowledgeBaseChunks))
}

func TestReloadRejectsOtherModel(t *testing.T) {
	emb := embedder.NewHashEmbedder(64)
	svc, _ := newService(t, buildKB(t, emb), emb, &fakeCompleter{})

	other := buildKB(t, embedder.NewHashEmbedder(32))
	err := svc.Reload(other)
	assert.ErrorIs(t, err, knowledge.ErrModelMismatch)

	_, n := svc.Stats()
	assert.Equal(t, len(corpus), n, "old knowledge base stays active")
}

func TestNewServiceRejectsModelMismatch(t *testing.T) {
	kb := buildKB(t, embedder.NewHashEmbedder(32))
	_, err := NewService(kb, embedder.NewHashEmbedder(64), &fakeCompleter{}, assembler, DefaultOptions(), nil, nil)
	assert.ErrorIs(t, err, knowledge.ErrModelMismatch)
}

func TestCannedMessagesUseSiteName(t *testing.T) {
	opts := DefaultOptions()
	opts.SiteName = "example.org"
	svc, err := NewService(emptyKB(t), embedder.NewHashEmbedder(8), &fakeCompleter{}, assembler, opts, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, svc.NoInformationMessage(), "visiting example.org directly")
	assert.Contains(t, svc.ApologyMessage(), "visit example.org for more information")
}
