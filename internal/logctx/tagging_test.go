package logctx

import (
	"context"
	"dronefeed/internal/global"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func ctxWithTags(tags []string) context.Context {
	return context.WithValue(context.Background(), global.LogTagsKey, tags)
}

func assertTags(t *testing.T, ctx context.Context, want []string) {
	t.Helper()
	got := GetTagList(ctx)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tags mismatch: got=%v want=%v", got, want)
	}
}

func TestGetTagList(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want []string
	}{
		{"no value in context", context.Background(), []string{}},
		{"slice stored", ctxWithTags([]string{global.NSCollector, global.NSNavdata}), []string{global.NSCollector, global.NSNavdata}},
		{"wrong type stored", context.WithValue(context.Background(), global.LogTagsKey, "nope"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertTags(t, tt.ctx, tt.want)
		})
	}
}

func TestGetTagList_ReturnsCopy(t *testing.T) {
	ctx := ctxWithTags([]string{"a", "b"})

	tags := GetTagList(ctx)
	tags[0] = "mutated"

	assertTags(t, ctx, []string{"a", "b"})
}

func TestTagOperations(t *testing.T) {
	tests := []struct {
		name  string
		start []string
		apply func(ctx context.Context) context.Context
		want  []string
	}{
		{
			name:  "append to empty",
			start: []string{},
			apply: func(ctx context.Context) context.Context { return AppendCtxTag(ctx, global.NSRelay) },
			want:  []string{global.NSRelay},
		},
		{
			name:  "append to existing",
			start: []string{global.NSDaemon},
			apply: func(ctx context.Context) context.Context { return AppendCtxTag(ctx, global.NSCollector) },
			want:  []string{global.NSDaemon, global.NSCollector},
		},
		{
			name:  "remove from empty",
			start: []string{},
			apply: RemoveLastCtxTag,
			want:  []string{},
		},
		{
			name:  "remove last of many",
			start: []string{"a", "b", "c"},
			apply: RemoveLastCtxTag,
			want:  []string{"a", "b"},
		},
		{
			name:  "overwrite replaces all",
			start: []string{"a", "b"},
			apply: func(ctx context.Context) context.Context { return OverwriteCtxTag(ctx, []string{"x"}) },
			want:  []string{"x"},
		},
		{
			name:  "chain append remove append",
			start: []string{},
			apply: func(ctx context.Context) context.Context {
				ctx = AppendCtxTag(ctx, "a")
				ctx = AppendCtxTag(ctx, "b")
				ctx = RemoveLastCtxTag(ctx)
				return AppendCtxTag(ctx, "c")
			},
			want: []string{"a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := ctxWithTags(tt.start)
			newCtx := tt.apply(orig)

			assertTags(t, newCtx, tt.want)
			assertTags(t, orig, tt.start) // parent untouched
		})
	}
}

func TestOverwriteCtxTag_CallerSliceMutation(t *testing.T) {
	newTags := []string{"a"}
	ctx := OverwriteCtxTag(context.Background(), newTags)

	newTags[0] = "mutated"

	assertTags(t, ctx, []string{"a"})
}

func TestTags_ConcurrentBranches(t *testing.T) {
	baseCtx := OverwriteCtxTag(context.Background(), []string{"base"})

	const goroutines = 8
	results := make([][]string, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ctx := AppendCtxTag(baseCtx, fmt.Sprintf("worker-%d", id))
			ctx = AppendCtxTag(ctx, "step")
			ctx = RemoveLastCtxTag(ctx)
			results[id] = GetTagList(AppendCtxTag(ctx, "final"))
		}(i)
	}
	wg.Wait()

	assertTags(t, baseCtx, []string{"base"})
	for id, got := range results {
		want := []string{"base", fmt.Sprintf("worker-%d", id), "final"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("goroutine %d tags mismatch: got=%v want=%v", id, got, want)
		}
	}
}
