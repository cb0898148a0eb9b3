package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeActivities struct {
	label      QueryType
	docs       []RetrievedDoc
	retrConf   float64
	web        []string
	webConf    float64
	answer     string
	retrieveK  int
	calls      []string
	synthErr   error
	classifyFn func(string) (Classification, error)
}

func (f *fakeActivities) Classify(_ context.Context, q string) (Classification, error) {
	f.calls = append(f.calls, "classify")
	if f.classifyFn != nil {
		return f.classifyFn(q)
	}
	return Classification{QueryType: f.label, RawLabel: f.label.String(), Recognized: true, Note: "classified " + f.label.String()}, nil
}

func (f *fakeActivities) Retrieve(_ context.Context, _ string, k int) ([]RetrievedDoc, float64, error) {
	f.calls = append(f.calls, "retrieve")
	f.retrieveK = k
	return f.docs, f.retrConf, nil
}

func (f *fakeActivities) WebSearch(context.Context, string) ([]string, float64, error) {
	f.calls = append(f.calls, "web")
	return f.web, f.webConf, nil
}

func (f *fakeActivities) QualityGate(s State) State {
	f.calls = append(f.calls, "gate")
	if s.Confidence < 0.3 {
		s.RetrievedDocs = nil
		return s.WithNote("low")
	}
	return s.WithNote("kept")
}

func (f *fakeActivities) Synthesize(_ context.Context, s State) (string, error) {
	f.calls = append(f.calls, "synthesize")
	if f.synthErr != nil {
		return "", f.synthErr
	}
	return f.answer, nil
}

type recordingObserver struct {
	results []*Result
	errs    []error
}

func (r *recordingObserver) ObserveRun(_ context.Context, _ string, res *Result, err error) {
	r.results = append(r.results, res)
	r.errs = append(r.errs, err)
}

func TestRouting(t *testing.T) {
	tests := []struct {
		label QueryType
		path  []Node
		calls []string
	}{
		{QueryTypeGreeting, []Node{NodeAnalyze, NodeGenerate}, []string{"classify", "synthesize"}},
		{QueryTypeCalculation, []Node{NodeAnalyze, NodeGenerate}, []string{"classify", "synthesize"}},
		{QueryTypeGeneral, []Node{NodeAnalyze, NodeGenerate}, []string{"classify", "synthesize"}},
		{QueryTypeFactual, []Node{NodeAnalyze, NodeRetrieve, NodeQualityCheck, NodeGenerate}, []string{"classify", "retrieve", "gate", "synthesize"}},
		{QueryTypeWebCurrent, []Node{NodeAnalyze, NodeWebSearch, NodeGenerate}, []string{"classify", "web", "synthesize"}},
	}
	for _, tt := range tests {
		t.Run(tt.label.String(), func(t *testing.T) {
			acts := &fakeActivities{label: tt.label, answer: "ok", retrConf: 0.8, docs: []RetrievedDoc{{ID: "doc_0"}}, web: []string{"w"}, webConf: 0.5}
			res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.path, res.Path)
			assert.Equal(t, tt.calls, acts.calls)
			assert.Equal(t, "ok", res.State.Answer)
			assert.Equal(t, tt.label, res.State.QueryType)
			assert.Len(t, res.Timings, len(tt.path))
		})
	}
}

func TestDefaultTopKApplied(t *testing.T) {
	acts := &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 0.9}
	_, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "what is rag", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, acts.retrieveK)

	acts = &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 0.9}
	_, err = NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "what is rag", RunOptions{TopK: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, acts.retrieveK)

	acts = &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 0.9}
	e := NewEngine(acts, zaptest.NewLogger(t))
	e.SetDefaultTopK(5)
	e.SetDefaultTopK(0)
	_, err = e.Run(context.Background(), "what is rag", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, acts.retrieveK)
}

func TestFlagsAreExclusive(t *testing.T) {
	for _, qt := range QueryTypes {
		acts := &fakeActivities{label: qt, answer: "a"}
		res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
		require.NoError(t, err)
		assert.False(t, res.State.NeedsRetrieval && res.State.NeedsWebSearch, qt)
		assert.Equal(t, qt == QueryTypeFactual, res.State.NeedsRetrieval)
		assert.Equal(t, qt == QueryTypeWebCurrent, res.State.NeedsWebSearch)
	}
}

func TestConfidenceClampedAndTraceGrows(t *testing.T) {
	acts := &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 1.7, docs: []RetrievedDoc{{ID: "doc_1"}}}
	res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.State.Confidence)
	assert.Equal(t, []string{
		"classified factual",
		"Retrieved 1 document(s) with confidence 1.00.",
		"kept",
		"Generated answer using the grounded template.",
	}, res.State.ReasoningTrace)
}

func TestLowConfidenceFallback(t *testing.T) {
	acts := &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 0.1, docs: []RetrievedDoc{{ID: "doc_1"}}}
	res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.State.RetrievedDocs)
	assert.Contains(t, res.State.ReasoningTrace, "low")
}

func TestTraceHasOneNotePerNode(t *testing.T) {
	for _, qt := range QueryTypes {
		for _, conf := range []float64{0.1, 0.8} {
			acts := &fakeActivities{label: qt, answer: "a", retrConf: conf, docs: []RetrievedDoc{{ID: "doc_0"}}, web: []string{"w"}, webConf: 0.5}
			res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
			require.NoError(t, err)
			assert.Len(t, res.State.ReasoningTrace, len(res.Path), "%s at confidence %.1f", qt, conf)
		}
	}

	acts := &fakeActivities{label: QueryTypeGreeting, answer: "hi"}
	res, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "Hello!", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Generated answer using the conversational template.", res.State.ReasoningTrace[len(res.State.ReasoningTrace)-1])
}

func TestEmptyQuery(t *testing.T) {
	acts := &fakeActivities{label: QueryTypeGeneral}
	_, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "   ", RunOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, acts.calls)
}

func TestEmptyAnswer(t *testing.T) {
	obs := &recordingObserver{}
	acts := &fakeActivities{label: QueryTypeGreeting, answer: "  "}
	res, err := NewEngine(acts, zaptest.NewLogger(t), obs).Run(context.Background(), "hi", RunOptions{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	require.Len(t, obs.errs, 1)
	assert.Nil(t, obs.results[0])
	assert.ErrorIs(t, obs.errs[0], ErrEmptyAnswer)
}

func TestNodeErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	acts := &fakeActivities{classifyFn: func(string) (Classification, error) { return Classification{}, boom }}
	_, err := NewEngine(acts, zaptest.NewLogger(t)).Run(context.Background(), "q", RunOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"classify"}, acts.calls)
}

func TestRevisitRejected(t *testing.T) {
	acts := &fakeActivities{label: QueryTypeFactual, answer: "a", retrConf: 0.9}
	loop := DefaultTransitions()
	loop[NodeQualityCheck] = always(NodeRetrieve)
	_, err := NewEngine(acts, zaptest.NewLogger(t)).WithTransitions(loop).Run(context.Background(), "q", RunOptions{})
	assert.ErrorIs(t, err, ErrNodeRevisited)
	assert.Equal(t, []string{"classify", "retrieve", "gate"}, acts.calls)
}

func TestObserverSeesSuccess(t *testing.T) {
	obs := &recordingObserver{}
	acts := &fakeActivities{label: QueryTypeGeneral, answer: "Paris"}
	res, err := NewEngine(acts, zaptest.NewLogger(t), obs).Run(context.Background(), "capital of france", RunOptions{})
	require.NoError(t, err)
	require.Len(t, obs.results, 1)
	assert.Same(t, res, obs.results[0])
	assert.NoError(t, obs.errs[0])
}

func TestParseQueryType(t *testing.T) {
	tests := []struct {
		raw  string
		want QueryType
		ok   bool
	}{
		{"factual", QueryTypeFactual, true},
		{"  Greeting.\n", QueryTypeGreeting, true},
		{"\"calculation\"", QueryTypeCalculation, true},
		{"1. general", QueryTypeGeneral, true},
		{"web_current", QueryTypeWebCurrent, true},
		{"Web-Current", QueryTypeWebCurrent, true},
		{"web current", QueryTypeWebCurrent, true},
		{"factual/general", QueryTypeFactual, true},
		{"banana", QueryTypeGeneral, false},
		{"", QueryTypeGeneral, false},
	}
	for _, tt := range tests {
		got, ok := ParseQueryType(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestWithNoteDoesNotAlias(t *testing.T) {
	base := NewState("q").WithNote("a")
	x := base.WithNote("b")
	y := base.WithNote("c")
	assert.Equal(t, []string{"a"}, base.ReasoningTrace)
	assert.Equal(t, []string{"a", "b"}, x.ReasoningTrace)
	assert.Equal(t, []string{"a", "c"}, y.ReasoningTrace)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.4))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 1.0, Clamp01(3))
}
