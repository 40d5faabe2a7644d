package cluster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/metadata/sqlite"
	"github.com/poiesic/docseek/storage"
	"github.com/poiesic/docseek/storage/badger"
	"github.com/poiesic/docseek/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner core.ID = 1

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type engineFixture struct {
	meta     *sqlite.Store
	termRepo storage.TermIndexRepository
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	termRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	meta, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	return &engineFixture{meta: meta, termRepo: termRepo}
}

func (f *engineFixture) addDoc(t *testing.T, id, ownerID core.ID, body string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.meta.PutDocument(ctx, &core.DocumentMeta{ID: id, OwnerID: ownerID, UpdatedAt: fixedNow}))
	require.NoError(t, f.termRepo.ReplaceDocument(ctx, &core.DocumentText{
		ID:          id,
		Text:        body,
		Terms:       text.TermFrequencies(body),
		ContentHash: core.ContentHash(body),
	}))
	require.NoError(t, f.meta.MarkIndexed(ctx, id, fixedNow))
}

// addCorpus adds two groups of similar documents and one outlier.
func (f *engineFixture) addCorpus(t *testing.T, ownerID core.ID, base core.ID) {
	t.Helper()
	f.addDoc(t, base+1, ownerID, "alpha bravo cello delta")
	f.addDoc(t, base+2, ownerID, "alpha bravo cello foxtrot")
	f.addDoc(t, base+3, ownerID, "alpha bravo golf hotel")
	f.addDoc(t, base+4, ownerID, "kilo lima orca oscar")
	f.addDoc(t, base+5, ownerID, "kilo lima orca tango")
	f.addDoc(t, base+6, ownerID, "papa quebec romeo sierra")
}

func (f *engineFixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := NewEngine(f.meta, f.termRepo, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_RequiredCollaborators(t *testing.T) {
	f := setupEngine(t)

	_, err := NewEngine(nil, f.termRepo)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewEngine(f.meta, nil)
	assert.ErrorIs(t, err, ErrTermRepositoryRequired)

	_, err = NewEngine(f.meta, f.termRepo, WithClock(nil))
	assert.Error(t, err)
}

func TestCreateClusters(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()

	clusters, err := f.engine(t).CreateClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	assert.Equal(t, "Document Cluster 1", clusters[0].Name)
	assert.Equal(t, "Group of 3 similar documents", clusters[0].Description)
	assert.Equal(t, []core.ID{1, 2, 3}, clusters[0].DocumentIDs())
	assert.Equal(t, []string{"alpha", "bravo", "cello", "delta", "foxtrot"}, clusters[0].Keywords)
	assert.Equal(t, "Document Cluster 2", clusters[1].Name)
	assert.Equal(t, "Group of 2 similar documents", clusters[1].Description)
	assert.Equal(t, []core.ID{4, 5}, clusters[1].DocumentIDs())

	for _, c := range clusters {
		assert.Len(t, c.ID, 36)
		assert.Equal(t, owner, c.UserID)
		assert.Equal(t, fixedNow, c.CreatedAt)
	}
	assert.NotEqual(t, clusters[0].ID, clusters[1].ID)

	stored, err := f.meta.GetClusters(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, clusters, stored)
}

func TestCreateClusters_TooFewDocuments(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()
	e := f.engine(t)

	_, err := e.CreateClusters(ctx, owner)
	require.NoError(t, err)
	before, err := e.GetClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, before, 2)

	// Another user with four documents gets nothing and changes nothing.
	for id := core.ID(100); id < 104; id++ {
		f.addDoc(t, id, 2, "alpha bravo cello delta")
	}
	clusters, err := e.CreateClusters(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, clusters)
	none, err := e.GetClusters(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	after, err := e.GetClusters(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreateClusters_NoSimilarDocuments(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.addDoc(t, 1, owner, "alpha bravo")
	f.addDoc(t, 2, owner, "cello delta")
	f.addDoc(t, 3, owner, "foxtrot golf")
	f.addDoc(t, 4, owner, "hotel kilo")
	f.addDoc(t, 5, owner, "lima orca")

	clusters, err := f.engine(t).CreateClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestCreateClusters_ReplacesPreviousRun(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()
	e := f.engine(t)

	first, err := e.CreateClusters(ctx, owner)
	require.NoError(t, err)
	second, err := e.CreateClusters(ctx, owner)
	require.NoError(t, err)

	stored, err := e.GetClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored, len(second))
	assert.Equal(t, second[0].ID, stored[0].ID)
	assert.NotEqual(t, first[0].ID, stored[0].ID)
}

func TestCreateClusters_EligibleDocuments(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.addDoc(t, 1, owner, "alpha bravo cello delta")
	f.addDoc(t, 2, owner, "alpha bravo cello foxtrot")
	f.addDoc(t, 3, owner, "golf hotel kilo lima")
	f.addDoc(t, 4, owner, "orca oscar papa quebec")
	// Shared with the owner.
	f.addDoc(t, 5, 2, "golf hotel kilo tango")
	require.NoError(t, f.meta.ShareDocument(ctx, 5, owner))
	// Not shared.
	f.addDoc(t, 6, 2, "orca oscar papa romeo")
	// Known to metadata but never indexed.
	require.NoError(t, f.meta.PutDocument(ctx, &core.DocumentMeta{ID: 7, OwnerID: owner}))

	clusters, err := f.engine(t).CreateClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, []core.ID{1, 2}, clusters[0].DocumentIDs())
	assert.Equal(t, []core.ID{3, 5}, clusters[1].DocumentIDs())
}

func TestCreateClusters_UserRequired(t *testing.T) {
	f := setupEngine(t)
	_, err := f.engine(t).CreateClusters(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUserRequired)
}

type fakeClusterer struct {
	clusters []*core.Cluster
	err      error
	calls    atomic.Int32
}

func (c *fakeClusterer) Cluster(ctx context.Context, docs []Document) ([]*core.Cluster, error) {
	c.calls.Add(1)
	return c.clusters, c.err
}

func TestCreateClusters_ExternalClusterer(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()

	external := &fakeClusterer{clusters: []*core.Cluster{
		{
			ID:       "ignored",
			Name:     "External",
			Keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6"},
			Members: []core.ClusterMember{
				{DocumentID: 6, Similarity: 0.9},
				{DocumentID: 1, Similarity: 0.8},
				{DocumentID: 999, Similarity: 0.7},
			},
		},
		{
			// Left with one member once the unknown document is dropped.
			Members: []core.ClusterMember{{DocumentID: 2, Similarity: 0.5}, {DocumentID: 1000, Similarity: 0.5}},
		},
		{
			Members: []core.ClusterMember{{DocumentID: 4, Similarity: 0.6}, {DocumentID: 5, Similarity: 0.6}},
		},
	}}

	clusters, err := f.engine(t, WithExternalClusterer(external)).CreateClusters(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int32(1), external.calls.Load())
	require.Len(t, clusters, 2)

	assert.Equal(t, []core.ID{6, 1}, clusters[0].DocumentIDs())
	assert.Equal(t, "Document Cluster 1", clusters[0].Name)
	assert.Equal(t, "Group of 2 similar documents", clusters[0].Description)
	assert.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, clusters[0].Keywords)
	assert.NotEqual(t, "ignored", clusters[0].ID)

	assert.Equal(t, []core.ID{4, 5}, clusters[1].DocumentIDs())
	assert.Equal(t, "Document Cluster 2", clusters[1].Name)
	assert.Equal(t, []string{"kilo", "lima", "orca", "oscar", "tango"}, clusters[1].Keywords)
}

func TestCreateClusters_ExternalFailureFallsBack(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()

	builtIn, err := f.engine(t).CreateClusters(ctx, owner)
	require.NoError(t, err)

	external := &fakeClusterer{err: errors.New("process crashed")}
	fallback, err := f.engine(t, WithExternalClusterer(external)).CreateClusters(ctx, owner)
	require.NoError(t, err)

	require.Len(t, fallback, len(builtIn))
	for i := range builtIn {
		assert.Equal(t, builtIn[i].Members, fallback[i].Members)
		assert.Equal(t, builtIn[i].Keywords, fallback[i].Keywords)
		assert.Equal(t, builtIn[i].Name, fallback[i].Name)
	}
}

func TestCreateClusters_CommandFailureFallsBack(t *testing.T) {
	script, _ := writeScript(t, `exit 1`)
	cmd, err := NewCommandClusterer(script)
	require.NoError(t, err)

	f := setupEngine(t)
	f.addCorpus(t, owner, 0)

	clusters, err := f.engine(t, WithExternalClusterer(cmd)).CreateClusters(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, []core.ID{1, 2, 3}, clusters[0].DocumentIDs())
}

// blockingClusterer tracks how many runs overlap.
type blockingClusterer struct {
	release  chan struct{}
	entered  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *blockingClusterer) Cluster(ctx context.Context, docs []Document) ([]*core.Cluster, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	c.entered <- struct{}{}
	<-c.release
	return GroupByOverlap(docs), nil
}

func TestCreateClusters_OneRunPerUser(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)
	ctx := context.Background()

	external := &blockingClusterer{release: make(chan struct{}), entered: make(chan struct{}, 4)}
	e := f.engine(t, WithExternalClusterer(external))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateClusters(ctx, owner)
			assert.NoError(t, err)
		}()
	}

	<-external.entered
	// Give the other callers a chance to reach the lock.
	time.Sleep(20 * time.Millisecond)
	close(external.release)
	wg.Wait()

	assert.Equal(t, int32(1), external.maxSeen.Load())
}

func TestCreateClusters_WaitHonorsContext(t *testing.T) {
	f := setupEngine(t)
	f.addCorpus(t, owner, 0)

	external := &blockingClusterer{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := f.engine(t, WithExternalClusterer(external))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := e.CreateClusters(context.Background(), owner)
		assert.NoError(t, err)
	}()
	<-external.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.CreateClusters(ctx, owner)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(external.release)
	<-done
}
