package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"brandempire.shop/storefront/internal/catalog"
)

type fakeSource struct {
	mu             sync.Mutex
	tree           []catalog.Category
	categoryErr    error
	searchErr      error
	categoryCalls  int
	searches       []string
	categoryHits   []catalog.ID
	searchStarted  chan string
	blockUntilDone bool
	categoryGate   chan struct{}
}

func (f *fakeSource) Categories(ctx context.Context) ([]catalog.Category, error) {
	f.mu.Lock()
	f.categoryCalls++
	tree, err, gate := f.tree, f.categoryErr, f.categoryGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tree, err
}

func (f *fakeSource) categoryCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categoryCalls
}

func (f *fakeSource) CategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryHits = append(f.categoryHits, id)
	return catalog.Page{Records: []catalog.ProductRecord{{ID: "cat-item", RetailsPrice: 500}}, LastPage: 2}, nil
}

func (f *fakeSource) Search(ctx context.Context, keyword string, page int) (catalog.Page, error) {
	f.mu.Lock()
	f.searches = append(f.searches, keyword)
	started, block, err := f.searchStarted, f.blockUntilDone, f.searchErr
	f.mu.Unlock()
	if started != nil {
		started <- keyword
	}
	if block {
		<-ctx.Done()
		return catalog.Page{}, ctx.Err()
	}
	return catalog.Page{Records: []catalog.ProductRecord{{ID: catalog.ID("hit-" + keyword)}}}, err
}

func (f *fakeSource) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func tree() []catalog.Category {
	return []catalog.Category{
		{ID: "1", Name: "Men", Children: []catalog.Category{
			{ID: "10", Name: "Shirts", Children: []catalog.Category{{ID: "100", Name: "Casual Shirts"}}},
		}},
		{ID: "2", Name: "Ünisex Wear"},
	}
}

func newResolver(t *testing.T, src Source, clock func() time.Time) *Resolver {
	t.Helper()
	r, err := NewResolver(Deps{Source: src, Clock: clock})
	require.NoError(t, err)
	return r
}

func TestResolveExactCategoryMatch(t *testing.T) {
	src := &fakeSource{tree: tree()}
	r := newResolver(t, src, nil)

	res := r.Resolve(context.Background(), "  casual   SHIRTS ")
	require.Equal(t, KindCategory, res.Kind)
	require.Equal(t, &CategoryMatch{ID: "100", Name: "Casual Shirts"}, res.Category)
	require.Equal(t, []catalog.ID{"100"}, src.categoryHits)
	require.Empty(t, src.searched())
	require.Len(t, res.Items, 1)
	require.Equal(t, 2, res.LastPage)

	res = r.Resolve(context.Background(), "üNISEX wear")
	require.Equal(t, KindCategory, res.Kind)
	require.Equal(t, catalog.ID("2"), res.Category.ID)
}

func TestResolveFallsBackToSearch(t *testing.T) {
	src := &fakeSource{tree: tree()}
	r := newResolver(t, src, nil)

	res := r.Resolve(context.Background(), "Shirt")
	require.Equal(t, KindSearch, res.Kind)
	require.Nil(t, res.Category)
	require.Equal(t, []string{"Shirt"}, src.searched())
	require.Equal(t, "hit-Shirt", res.Items[0].ID)
	require.Equal(t, 1, res.LastPage)
}

func TestResolveEmptyQuery(t *testing.T) {
	src := &fakeSource{tree: tree()}
	res := newResolver(t, src, nil).Resolve(context.Background(), "   ")
	require.Equal(t, KindNone, res.Kind)
	require.Zero(t, src.categoryCalls)
	require.Empty(t, src.searched())
}

func TestResolveFailureDegrades(t *testing.T) {
	src := &fakeSource{categoryErr: errors.New("down"), searchErr: errors.New("down")}
	res := newResolver(t, src, nil).Resolve(context.Background(), "Men")
	require.True(t, res.Failed)
	require.Equal(t, KindSearch, res.Kind)
	require.Empty(t, res.Items)
}

func TestCategoryTreeIsCached(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{tree: tree()}
	r := newResolver(t, src, func() time.Time { return now })

	r.Resolve(context.Background(), "men")
	r.Resolve(context.Background(), "shirts")
	require.Equal(t, 1, src.categoryCalls)

	now = now.Add(6 * time.Minute)
	r.Resolve(context.Background(), "men")
	require.Equal(t, 2, src.categoryCalls)
}

func TestSlowCategoryRefreshDoesNotBlockOtherCallers(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{tree: tree(), categoryGate: gate}
	r := newResolver(t, src, nil)

	first := make(chan Resolution, 1)
	go func() { first <- r.Resolve(context.Background(), "men") }()
	require.Eventually(t, func() bool { return src.categoryCallCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := r.Resolve(ctx, "men")
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, KindSearch, res.Kind)
	require.Equal(t, 1, src.categoryCallCount())

	close(gate)
	select {
	case res := <-first:
		require.Equal(t, KindCategory, res.Kind)
	case <-time.After(time.Second):
		t.Fatal("first resolution did not finish")
	}

	res = r.Resolve(context.Background(), "men")
	require.Equal(t, KindCategory, res.Kind)
	require.Equal(t, 1, src.categoryCallCount())
}

func TestStaleTreeServedWhenRefreshFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{tree: tree()}
	r := newResolver(t, src, func() time.Time { return now })
	r.Resolve(context.Background(), "men")

	now = now.Add(time.Hour)
	src.mu.Lock()
	src.categoryErr = errors.New("down")
	src.mu.Unlock()
	res := r.Resolve(context.Background(), "men")
	require.Equal(t, KindCategory, res.Kind)
}

func TestLookupSupersedesPendingQuery(t *testing.T) {
	src := &fakeSource{tree: tree()}
	session := newResolver(t, src, nil).NewSession(30 * time.Millisecond)
	defer session.Close()

	first := session.Lookup(context.Background(), "sh")
	second := session.Lookup(context.Background(), "shoes")

	_, err := first.Wait(context.Background())
	require.ErrorIs(t, err, ErrSuperseded)

	res, err := second.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "shoes", res.Query)
	require.Equal(t, []string{"shoes"}, src.searched())
}

func TestSubmitBypassesDebounceAndSupersedesInFlight(t *testing.T) {
	started := make(chan string, 4)
	src := &fakeSource{tree: tree(), searchStarted: started, blockUntilDone: true}
	session := newResolver(t, src, nil).NewSession(time.Hour)
	defer session.Close()

	inFlight := session.Submit(context.Background(), "sandal")
	require.Equal(t, "sandal", <-started)

	src.mu.Lock()
	src.blockUntilDone = false
	src.mu.Unlock()

	latest := session.Submit(context.Background(), "boots")
	_, err := inFlight.Wait(context.Background())
	require.ErrorIs(t, err, ErrSuperseded)

	res, err := latest.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hit-boots", res.Items[0].ID)
}

func TestCloseCancelsPendingDebounce(t *testing.T) {
	src := &fakeSource{tree: tree()}
	session := newResolver(t, src, nil).NewSession(time.Hour)

	pending := session.Lookup(context.Background(), "panjabi")
	session.Close()

	_, err := pending.Wait(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	_, err = session.Submit(context.Background(), "panjabi").Wait(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.Empty(t, src.searched())
}

func TestTaskCancel(t *testing.T) {
	src := &fakeSource{tree: tree()}
	session := newResolver(t, src, nil).NewSession(time.Hour)
	defer session.Close()

	task := session.Lookup(context.Background(), "kurti")
	task.Cancel()
	<-task.Done()
	_, err := task.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}
