package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arloliu/crawlsource/types"
)

// Item is a static work item and its pages.
type Item struct {
	Key   string
	Pages [][]types.Record
}

// Static implements types.Crawler over a fixed list of items.
//
// The discovery state is the number of items already discovered, so items
// added with Update after a discovery pass are reported on the next one. The
// fetch state is the index of the next page.
type Static struct {
	mu       sync.RWMutex
	order    []string
	items    map[string]Item
	failures map[string]*failure
	discover *failure
	fetches  map[string]int
}

type failure struct {
	err       error
	remaining int // negative means forever
}

func (f *failure) take() error {
	if f == nil || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}

	return f.err
}

var _ types.Crawler = (*Static)(nil)

// NewStatic creates a static crawler.
//
// Parameters:
//   - items: Initial items, discovered in order
//
// Returns:
//   - *Static: Initialized crawler
//
// Example:
//
//	c := crawler.NewStatic(
//	    crawler.Item{Key: "repo-1", Pages: [][]types.Record{{{Key: "r1"}}, {{Key: "r2"}}}},
//	)
func NewStatic(items ...Item) *Static {
	s := &Static{
		items:    make(map[string]Item),
		failures: make(map[string]*failure),
		fetches:  make(map[string]int),
	}
	s.Update(items...)

	return s
}

// Pages builds count single-record pages for key. Record keys are "<key>-<n>".
func Pages(key string, count int) [][]types.Record {
	pages := make([][]types.Record, count)
	for i := range pages {
		pages[i] = []types.Record{{
			Key:        fmt.Sprintf("%s-%d", key, i),
			Data:       []byte(fmt.Sprintf(`{"item":%q,"page":%d}`, key, i)),
			Attributes: map[string]string{"item": key},
		}}
	}

	return pages
}

// Update adds new items and replaces the pages of existing ones.
//
// New items keep their argument order after the items already known.
func (s *Static) Update(items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, ok := s.items[item.Key]; !ok {
			s.order = append(s.order, item.Key)
		}
		s.items[item.Key] = Item{Key: item.Key, Pages: clonePages(item.Pages)}
	}
}

// FailFetch makes the next times Fetch calls for key return err.
// A negative times fails every call.
func (s *Static) FailFetch(key string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[key] = &failure{err: err, remaining: times}
}

// FailDiscover makes the next times Discover calls return err.
// A negative times fails every call.
func (s *Static) FailDiscover(err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discover = &failure{err: err, remaining: times}
}

// Fetches returns how many successful Fetch calls were served for key.
func (s *Static) Fetches(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fetches[key]
}

// Discover returns the items added since lastState.
func (s *Static) Discover(ctx context.Context, lastState json.RawMessage) (types.DiscoveryResult, error) {
	if err := ctx.Err(); err != nil {
		return types.DiscoveryResult{}, err
	}

	seen, err := decodeIndex(lastState)
	if err != nil {
		return types.DiscoveryResult{}, fmt.Errorf("discovery state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.discover.take(); err != nil {
		return types.DiscoveryResult{}, err
	}

	seen = min(seen, len(s.order))
	items := make([]types.WorkItem, 0, len(s.order)-seen)
	for _, key := range s.order[seen:] {
		items = append(items, types.WorkItem{Key: key})
	}

	return types.DiscoveryResult{Items: items, State: encodeIndex(len(s.order))}, nil
}

// Fetch returns the page at the index held in state.
func (s *Static) Fetch(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return types.FetchResult{}, err
	}

	page, err := decodeIndex(state)
	if err != nil {
		return types.FetchResult{}, fmt.Errorf("fetch state for %q: %w: %w", item.Key, err, types.ErrUnrecoverable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known, ok := s.items[item.Key]
	if !ok {
		return types.FetchResult{}, fmt.Errorf("unknown item %q: %w", item.Key, types.ErrUnrecoverable)
	}
	if err := s.failures[item.Key].take(); err != nil {
		return types.FetchResult{}, err
	}
	s.fetches[item.Key]++

	if page >= len(known.Pages) {
		return types.FetchResult{State: encodeIndex(page), Complete: true}, nil
	}

	next := page + 1
	records := make([]types.Record, len(known.Pages[page]))
	copy(records, known.Pages[page])

	return types.FetchResult{
		Records:  records,
		State:    encodeIndex(next),
		Complete: next >= len(known.Pages),
	}, nil
}

func decodeIndex(state json.RawMessage) (int, error) {
	if len(state) == 0 {
		return 0, nil
	}

	var n int
	if err := json.Unmarshal(state, &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}

	return n, nil
}

func encodeIndex(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}

func clonePages(pages [][]types.Record) [][]types.Record {
	out := make([][]types.Record, len(pages))
	for i, page := range pages {
		out[i] = append([]types.Record(nil), page...)
	}

	return out
}
