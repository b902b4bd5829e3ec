package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMailbox struct {
	mu        sync.Mutex
	unread    []string
	fetchErr  map[string]error
	labelErr  map[string]error
	authErr   error
	fetched   map[string]int
	labels    map[string][]string
	read      map[string]bool
	content   map[string]*AnalysisRequest
	byLabel   map[string][]string
	excluded  []string
	authCalls int
}

func newFakeMailbox(ids ...string) *fakeMailbox {
	return &fakeMailbox{
		unread:   ids,
		fetchErr: map[string]error{},
		labelErr: map[string]error{},
		fetched:  map[string]int{},
		labels:   map[string][]string{},
		read:     map[string]bool{},
		content:  map[string]*AnalysisRequest{},
		byLabel:  map[string][]string{},
	}
}

func (m *fakeMailbox) Authenticate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCalls++
	return m.authErr
}

func (m *fakeMailbox) ListByLabel(_ context.Context, label string, max int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byLabel[label]
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (m *fakeMailbox) ListUnread(_ context.Context, exclude []string, max int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded = exclude
	ids := m.unread
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (m *fakeMailbox) GetContent(_ context.Context, id string) (*AnalysisRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched[id]++
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	if req, ok := m.content[id]; ok {
		return req, nil
	}
	return &AnalysisRequest{Subject: id}, nil
}

func (m *fakeMailbox) AddLabel(_ context.Context, id, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.labelErr[id]; err != nil {
		return err
	}
	m.labels[id] = append(m.labels[id], label)
	return nil
}

func (m *fakeMailbox) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read[id] = true
	return nil
}

// fakeAnalyzer flags subjects starting with "phish" and tracks concurrency
type fakeAnalyzer struct {
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	failFor map[string]error
	panicOn string
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req *AnalysisRequest) (*Verdict, error) {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		peak := a.peak.Load()
		if n <= peak || a.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(a.delay)

	if req.Subject == a.panicOn {
		panic("boom")
	}
	if err := a.failFor[req.Subject]; err != nil {
		return nil, err
	}
	if len(req.Subject) >= 5 && req.Subject[:5] == "phish" {
		return newVerdict(&FraudResult{Detected: true, Confidence: 80, Threshold: 30}, map[Stage]StageResult{}), nil
	}
	return newVerdict(nil, map[Stage]StageResult{}), nil
}

var testLabels = Labels{Phishing: "Label_Phish", Safe: "Label_Safe"}

func newTestScheduler(mb Mailbox, an Analyzer, creds, maxWorkers int) *Scheduler {
	return NewScheduler(mb, an, func() int { return creds }, zap.NewNop(), SchedulerConfig{
		MaxWorkers:    maxWorkers,
		Labels:        testLabels,
		ExcludeLabels: []string{"Label_Phish", "Label_Safe"},
	})
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		creds, maxWorkers, items, want int
	}{
		{2, 4, 5, 2},
		{5, 2, 10, 2},
		{5, 8, 3, 3},
		{0, 2, 5, 1},
		{3, 0, 5, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt), func(t *testing.T) {
			s := newTestScheduler(newFakeMailbox(), &fakeAnalyzer{}, tt.creds, tt.maxWorkers)
			assert.Equal(t, tt.want, s.WorkerCount(tt.items))
		})
	}
}

func TestScanBatchProcessesEachItemOnce(t *testing.T) {
	ids := []string{"phish1", "safe1", "phish2", "safe2", "safe3"}
	mb := newFakeMailbox()
	an := &fakeAnalyzer{delay: 20 * time.Millisecond}
	s := newTestScheduler(mb, an, 2, 4)

	out, err := s.ScanBatch(context.Background(), ids)
	require.NoError(t, err)

	assert.NotEmpty(t, out.BatchID)
	assert.Equal(t, 2, out.Workers)
	assert.LessOrEqual(t, an.peak.Load(), int32(2))
	assert.Equal(t, 5, out.Processed)
	assert.Equal(t, 2, out.Flagged)
	assert.Equal(t, 3, out.Safe)
	assert.Equal(t, 0, out.Errored)

	require.Len(t, out.Items, len(ids))
	for i, id := range ids {
		item := out.Items[i]
		assert.Equal(t, id, item.ID)
		assert.True(t, item.Success)
		assert.Equal(t, i%2, item.Worker)
		assert.Equal(t, 1, mb.fetched[id])
		assert.True(t, mb.read[id])
	}
	assert.Equal(t, []string{"Label_Phish"}, mb.labels["phish1"])
	assert.Equal(t, []string{"Label_Safe"}, mb.labels["safe2"])
}

func TestScanBatchIsolatesFailures(t *testing.T) {
	ids := []string{"safe1", "gone", "boom", "broken", "phish1", "nolabel"}
	mb := newFakeMailbox()
	mb.fetchErr["gone"] = fmt.Errorf("get message gone: %w", ErrNotFound)
	mb.labelErr["nolabel"] = errors.New("label missing")
	an := &fakeAnalyzer{
		panicOn: "boom",
		failFor: map[string]error{"broken": ErrNoCredentials},
	}
	s := newTestScheduler(mb, an, 3, 3)

	out, err := s.ScanBatch(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 6, out.Processed)
	assert.Equal(t, 1, out.Flagged)
	assert.Equal(t, 1, out.Safe)
	assert.Equal(t, 4, out.Errored)

	byID := map[string]ItemOutcome{}
	for _, item := range out.Items {
		byID[item.ID] = item
	}
	assert.True(t, byID["safe1"].Success)
	assert.Contains(t, byID["gone"].Error, "fetch")
	assert.Contains(t, byID["boom"].Error, "panic: boom")
	assert.Contains(t, byID["broken"].Error, ErrNoCredentials.Error())
	assert.False(t, byID["nolabel"].Success)
	assert.NotNil(t, byID["nolabel"].Verdict)
	assert.False(t, mb.read["nolabel"])
	assert.False(t, mb.read["broken"])
}

func TestScanBatchRejectsBadIDs(t *testing.T) {
	mb := newFakeMailbox()
	s := newTestScheduler(mb, &fakeAnalyzer{}, 2, 2)

	_, err := s.ScanBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.ScanBatch(context.Background(), []string{"ok", "../etc"})
	assert.ErrorIs(t, err, ErrValidation)

	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("id%d", i)
	}
	_, err = s.ScanBatch(context.Background(), tooMany)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, mb.fetched)
}

func TestScanUnread(t *testing.T) {
	mb := newFakeMailbox("a1", "phish2", "a3")
	s := newTestScheduler(mb, &fakeAnalyzer{}, 4, 4)

	out, err := s.ScanUnread(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 1, out.Flagged)
	assert.Equal(t, []string{"Label_Phish", "Label_Safe"}, mb.excluded)

	empty := newTestScheduler(newFakeMailbox(), &fakeAnalyzer{}, 4, 4)
	out, err = empty.ScanUnread(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, out.BatchID)
	assert.Empty(t, out.Items)
	assert.Equal(t, 0, out.Processed)
}

func TestScanUnauthenticated(t *testing.T) {
	mb := newFakeMailbox("a1")
	mb.authErr = errors.New("token expired")
	s := newTestScheduler(mb, &fakeAnalyzer{}, 1, 1)

	_, err := s.ScanUnread(context.Background(), 10)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.ScanBatch(context.Background(), []string{"a1"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, mb.fetched)
}

func TestScanBatchAnalysesMailWithManyAttachments(t *testing.T) {
	rep := newFakeReputation()
	var atts []Attachment
	for i := 0; i < MaxAttachments+1; i++ {
		atts = append(atts, attachment(fmt.Sprintf("scan%02d.pdf", i), fmt.Sprintf("page %d", i)))
	}
	atts[3] = attachment("evil.exe", "MZ dropper")
	rep.files[atts[3].Hash()] = ReputationCounts{Malicious: 9}

	mb := newFakeMailbox()
	mb.content["m1"] = &AnalysisRequest{Subject: "Scanned documents", Attachments: atts}
	p, _ := newTestPipeline(rep, &fakeClassifier{}, nil, DefaultPipelineConfig())
	s := newTestScheduler(mb, p, 1, 1)

	out, err := s.ScanBatch(context.Background(), []string{"m1"})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	item := out.Items[0]
	assert.True(t, item.Success, item.Error)
	assert.Equal(t, 1, out.Flagged)
	assert.Equal(t, StageFile, item.Verdict.TriggeringStage)
	assert.Equal(t, []string{"Label_Phish"}, mb.labels["m1"])
	assert.True(t, mb.read["m1"])
	assert.Equal(t, MaxAttachments, rep.fileCalls)

	files := item.Verdict.Details[StageFile].(*FileResult)
	assert.Equal(t, MaxAttachments+1, files.TotalFiles)
	assert.Equal(t, []string{"scan10.pdf: skipped, over the 10 attachment limit"}, files.Errors)
}

func TestCountLabels(t *testing.T) {
	mb := newFakeMailbox()
	mb.byLabel["Label_Phish"] = []string{"p1"}
	mb.byLabel["Label_Safe"] = []string{"s1", "s2", "s3"}
	s := newTestScheduler(mb, &fakeAnalyzer{}, 1, 1)

	counts, err := s.CountLabels(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, LabelCounts{Phishing: 1, Safe: 3}, *counts)
	assert.InDelta(t, 25.0, counts.PhishingRate(), 0.001)
	assert.Equal(t, 1, mb.authCalls)

	assert.Zero(t, LabelCounts{}.PhishingRate())

	mb.authErr = errors.New("revoked")
	_, err = s.CountLabels(context.Background(), 100)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
