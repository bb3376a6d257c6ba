package orientation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_Validate(t *testing.T) {
	cases := []struct {
		name    string
		s       Sample
		wantErr bool
	}{
		{"zero", Sample{}, false},
		{"bounds_max", Sample{360, 180, 90}, false},
		{"bounds_min", Sample{0, -180, -90}, false},
		{"alpha_negative", Sample{-1, 0, 0}, true},
		{"alpha_over", Sample{360.5, 0, 0}, true},
		{"beta_over", Sample{0, 181, 0}, true},
		{"gamma_under", Sample{0, 0, -91}, true},
		{"nan", Sample{math.NaN(), 0, 0}, true},
		{"inf", Sample{0, math.Inf(1), 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMockAt_WithinRanges(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := MockAt(time.Duration(i) * 137 * time.Millisecond)
		require.NoError(t, s.Validate(), "sample %d: %+v", i, s)
	}
}

func TestMockSource_DeliversUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Sample, 16)
	src := NewMockSource(time.Millisecond)
	require.NoError(t, src.Subscribe(ctx, func(s Sample) {
		select {
		case got <- s:
		default:
		}
	}))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

func TestMockSource_SilentAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var n atomic.Int64
	src := NewMockSource(time.Millisecond)
	require.NoError(t, src.Subscribe(ctx, func(Sample) { n.Add(1) }))

	require.Eventually(t, func() bool { return n.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	settled := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, n.Load(), "samples delivered after cancel")
}

func TestReplaySource_SkipsInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		`{"alpha":10,"beta":20,"gamma":30}`,
		``,
		`not json`,
		`{"alpha":400,"beta":0,"gamma":0}`,
		`{"alpha":1.5,"beta":-2.5,"gamma":3.5}`,
	}, "\n")

	var mu sync.Mutex
	var samples []Sample
	src := NewReplaySource(strings.NewReader(input), 0)
	require.NoError(t, src.Subscribe(context.Background(), func(s Sample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	}))

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Sample{{10, 20, 30}, {1.5, -2.5, 3.5}}, samples)
}

func TestUnsupported_Subscribe(t *testing.T) {
	err := Unsupported{}.Subscribe(context.Background(), func(Sample) {})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestNew(t *testing.T) {
	src, closer, err := New(Options{Type: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockSource{}, src)
	assert.NoError(t, closer.Close())

	src, _, err = New(Options{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, Unsupported{}, src)

	path := filepath.Join(t.TempDir(), "samples.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"alpha":1,"beta":2,"gamma":3}`+"\n"), 0o644))
	src, closer, err = New(Options{Type: "replay", Path: path})
	require.NoError(t, err)
	assert.IsType(t, &ReplaySource{}, src)
	assert.NoError(t, closer.Close())

	_, _, err = New(Options{Type: "replay", Path: filepath.Join(t.TempDir(), "missing.jsonl")})
	assert.Error(t, err)

	_, _, err = New(Options{Type: "compass"})
	assert.Error(t, err)
}
