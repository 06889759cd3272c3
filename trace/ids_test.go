package trace

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

func TestGenerateTraceID_Format(t *testing.T) {
	id := GenerateTraceID()
	require.Len(t, id, 32)
	require.Regexp(t, `^[0-9a-f]{32}$`, id)
}

func TestGenerateSpanID_Format(t *testing.T) {
	id := GenerateSpanID()
	require.Len(t, id, 16)
	require.Regexp(t, `^[0-9a-f]{16}$`, id)
}

func TestGenerateIDs_Unique(t *testing.T) {
	require.NotEqual(t, GenerateTraceID(), GenerateTraceID())
	require.NotEqual(t, GenerateSpanID(), GenerateSpanID())
}

// Two concurrent invocations begun with distinct trace contexts must
// never observe each other's scope.
func TestTraceContextIsolation(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]string, 2)
	tcs := []mesh.TraceContext{{TraceID: "aaaa"}, {TraceID: "bbbb"}}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = RunWithTraceContext(context.Background(), tcs[i], func(ctx context.Context) error {
				got, ok := TraceScopeFromContext(ctx)
				require.True(t, ok)
				results[i] = got.TraceID
				return nil
			})
		}(i)
	}
	wg.Wait()

	require.Equal(t, "aaaa", results[0])
	require.Equal(t, "bbbb", results[1])
}
