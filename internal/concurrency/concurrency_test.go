package concurrency

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{name: "empty", items: nil, size: 3, want: nil},
		{name: "zero size", items: []int{1, 2}, size: 0, want: nil},
		{name: "single chunk", items: []int{1, 2}, size: 3, want: [][]int{{1, 2}}},
		{name: "exact multiple", items: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "remainder", items: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Chunk(tc.items, tc.size))
		})
	}
}

func TestPoolRunsEveryTask(t *testing.T) {
	var count atomic.Int32
	p := NewPool(context.Background(), 2)
	for i := 0; i < 10; i++ {
		p.Go(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})
	}
	require.NoError(t, p.Wait())
	require.Equal(t, int32(10), count.Load())
}

func TestPoolReturnsFirstError(t *testing.T) {
	boom := stderrors.New("boom")
	p := NewPool(context.Background(), 2)
	p.Go(func(ctx context.Context) error { return nil })
	p.Go(func(ctx context.Context) error { return boom })
	require.ErrorIs(t, p.Wait(), boom)
}
