package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

type fakeExecutor struct {
	calls   int
	offsets []int
	handler func(call, offset int) ([]byte, error)
}

func (f *fakeExecutor) Execute(_ context.Context, _, _, path string, _ any) ([]byte, error) {
	f.calls++
	offset := offsetOf(path)
	f.offsets = append(f.offsets, offset)
	return f.handler(f.calls, offset)
}

func offsetOf(path string) int {
	idx := strings.Index(path, "?")
	if idx < 0 {
		return 0
	}
	values, err := url.ParseQuery(path[idx+1:])
	if err != nil {
		return 0
	}
	offset, _ := strconv.Atoi(values.Get("offset"))
	return offset
}

func testPager(exec Executor, pageSize int) *Pager {
	return NewPager(exec, PagerConfig{
		PageSize:       pageSize,
		PageDelay:      time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}, nil)
}

func itemsJSON(ids ...int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"id":%d}`, id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestDrainAllWithAccurateTotal(t *testing.T) {
	// 5 items, page size 2, total declared up front: expect requests at
	// offsets 0, 2, 4 and all 5 items back.
	exec := &fakeExecutor{handler: func(_, offset int) ([]byte, error) {
		switch offset {
		case 0:
			return []byte(`{"results":[{"id":1},{"id":2}],"paging":{"total":5}}`), nil
		case 2:
			return []byte(`{"results":[{"id":3},{"id":4}],"paging":{"total":5}}`), nil
		case 4:
			return []byte(`{"results":[{"id":5}],"paging":{"total":5}}`), nil
		}
		return nil, fmt.Errorf("unexpected offset %d", offset)
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if res.Collected != 5 {
		t.Fatalf("Collected = %d, want 5", res.Collected)
	}
	if exec.calls != 3 {
		t.Fatalf("calls = %d, want 3", exec.calls)
	}
	wantOffsets := []int{0, 2, 4}
	for i, offset := range exec.offsets {
		if offset != wantOffsets[i] {
			t.Fatalf("offsets = %v, want %v", exec.offsets, wantOffsets)
		}
	}
}

func TestDrainAllNoTotalStillTerminates(t *testing.T) {
	// Bare arrays with no paging metadata: the short page ends the
	// drain.
	exec := &fakeExecutor{handler: func(_, offset int) ([]byte, error) {
		switch offset {
		case 0:
			return []byte(itemsJSON(1, 2)), nil
		case 2:
			return []byte(itemsJSON(3, 4)), nil
		case 4:
			return []byte(itemsJSON(5)), nil
		}
		return nil, fmt.Errorf("unexpected offset %d", offset)
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "orders", Path: "/orders"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if res.Collected != 5 {
		t.Fatalf("Collected = %d, want 5", res.Collected)
	}
	if exec.calls != 3 {
		t.Fatalf("calls = %d, want 3", exec.calls)
	}
}

func TestDrainAllEmptyPageCircuitBreaker(t *testing.T) {
	// Two full pages followed by endless empty pages: stops after the
	// third consecutive empty page and keeps the items already
	// collected.
	exec := &fakeExecutor{handler: func(_, offset int) ([]byte, error) {
		switch offset {
		case 0:
			return []byte(itemsJSON(1, 2)), nil
		case 2:
			return []byte(itemsJSON(3, 4)), nil
		}
		return []byte(`[]`), nil
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if res.Collected != 4 {
		t.Fatalf("Collected = %d, want 4", res.Collected)
	}
	if exec.calls != 5 {
		t.Fatalf("calls = %d, want 5 (2 full + 3 empty)", exec.calls)
	}
}

func TestDrainAllErrorCircuitBreaker(t *testing.T) {
	// Five consecutive server errors: the drain stops and surfaces the
	// error instead of looping forever.
	exec := &fakeExecutor{handler: func(_, _ int) ([]byte, error) {
		return nil, &FetchError{StatusCode: http.StatusInternalServerError}
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err == nil {
		t.Fatal("DrainAll() error = nil, want non-nil")
	}
	if res.Collected != 0 {
		t.Fatalf("Collected = %d, want 0", res.Collected)
	}
	if exec.calls != 5 {
		t.Fatalf("calls = %d, want 5", exec.calls)
	}
}

func TestDrainAllServerErrorSkipsPage(t *testing.T) {
	// A single 5xx page is skipped forward rather than retried, so one
	// poisoned page cannot stall the drain.
	exec := &fakeExecutor{handler: func(_, offset int) ([]byte, error) {
		switch offset {
		case 0:
			return []byte(itemsJSON(1, 2)), nil
		case 2:
			return nil, &FetchError{StatusCode: http.StatusBadGateway}
		case 4:
			return []byte(itemsJSON(5)), nil
		}
		return nil, fmt.Errorf("unexpected offset %d", offset)
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if res.Collected != 3 {
		t.Fatalf("Collected = %d, want 3", res.Collected)
	}
	wantOffsets := []int{0, 2, 4}
	for i, offset := range exec.offsets {
		if offset != wantOffsets[i] {
			t.Fatalf("offsets = %v, want %v", exec.offsets, wantOffsets)
		}
	}
}

func TestDrainAllRateLimitRetriesSameOffset(t *testing.T) {
	exec := &fakeExecutor{handler: func(call, offset int) ([]byte, error) {
		if call == 1 {
			return nil, &FetchError{StatusCode: http.StatusTooManyRequests}
		}
		return []byte(itemsJSON(1)), nil
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if res.Collected != 1 {
		t.Fatalf("Collected = %d, want 1", res.Collected)
	}
	if exec.offsets[0] != 0 || exec.offsets[1] != 0 {
		t.Fatalf("offsets = %v, want [0 0]", exec.offsets)
	}
}

func TestDrainAllClientErrorStopsImmediately(t *testing.T) {
	exec := &fakeExecutor{handler: func(_, offset int) ([]byte, error) {
		if offset == 0 {
			return []byte(itemsJSON(1, 2)), nil
		}
		return nil, &FetchError{StatusCode: http.StatusForbidden, Message: "missing scope"}
	}}

	res, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "claims", Path: "/claims"}, DrainOptions{})
	if !IsClientError(err) {
		t.Fatalf("DrainAll() error = %v, want client error", err)
	}
	if res.Collected != 2 {
		t.Fatalf("Collected = %d, want 2 (partial results preserved)", res.Collected)
	}
	if exec.calls != 2 {
		t.Fatalf("calls = %d, want 2", exec.calls)
	}
}

func TestDrainAllCredentialsExpiredStops(t *testing.T) {
	exec := &fakeExecutor{handler: func(_, _ int) ([]byte, error) {
		return nil, ErrCredentialsExpired
	}}

	_, err := testPager(exec, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if !errors.Is(err, ErrCredentialsExpired) {
		t.Fatalf("DrainAll() error = %v, want ErrCredentialsExpired", err)
	}
	if exec.calls != 1 {
		t.Fatalf("calls = %d, want 1", exec.calls)
	}
}

func TestDrainAllOffsetCeiling(t *testing.T) {
	// A provider that never signals completion is cut off at the
	// configured offset ceiling without an error.
	exec := &fakeExecutor{handler: func(_, _ int) ([]byte, error) {
		return []byte(itemsJSON(1, 2)), nil
	}}

	pager := NewPager(exec, PagerConfig{
		PageSize:       2,
		MaxOffset:      4,
		PageDelay:      time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}, nil)

	res, err := pager.DrainAll(context.Background(), "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if exec.calls != 2 {
		t.Fatalf("calls = %d, want 2", exec.calls)
	}
	if res.Collected != 4 {
		t.Fatalf("Collected = %d, want 4", res.Collected)
	}
}

func TestDrainAllContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExecutor{handler: func(_, _ int) ([]byte, error) {
		return []byte(itemsJSON(1)), nil
	}}

	_, err := testPager(exec, 2).DrainAll(ctx, "acct", Endpoint{Name: "items", Path: "/items"}, DrainOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("DrainAll() error = %v, want context.Canceled", err)
	}
	if exec.calls != 0 {
		t.Fatalf("calls = %d, want 0", exec.calls)
	}
}

func TestDrainAllQueryAppendsToExistingParams(t *testing.T) {
	var gotPath string
	exec := &fakeExecutor{handler: func(_, _ int) ([]byte, error) {
		return []byte(`[]`), nil
	}}
	execWrapped := executorFunc(func(ctx context.Context, accountID, method, path string, body any) ([]byte, error) {
		gotPath = path
		return exec.Execute(ctx, accountID, method, path, body)
	})

	_, err := testPager(execWrapped, 2).DrainAll(context.Background(), "acct", Endpoint{Name: "orders", Path: "/orders/search?seller=42"}, DrainOptions{})
	if err != nil {
		t.Fatalf("DrainAll() error = %v", err)
	}
	if !strings.Contains(gotPath, "seller=42&") && !strings.Contains(gotPath, "?seller=42") {
		t.Fatalf("path = %q, lost original query", gotPath)
	}
	if !strings.Contains(gotPath, "offset=") || !strings.Contains(gotPath, "limit=2") {
		t.Fatalf("path = %q, missing pagination params", gotPath)
	}
	if strings.Count(gotPath, "?") != 1 {
		t.Fatalf("path = %q, want exactly one query separator", gotPath)
	}
}

type executorFunc func(ctx context.Context, accountID, method, path string, body any) ([]byte, error)

func (f executorFunc) Execute(ctx context.Context, accountID, method, path string, body any) ([]byte, error) {
	return f(ctx, accountID, method, path, body)
}
