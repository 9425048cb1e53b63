package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenCache_RefreshesOnceForConcurrentReaders(t *testing.T) {
	c := NewMemoryTokenCache(time.Minute)
	var calls int32
	release := make(chan struct{})
	refresh := func(context.Context) (Token, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Token{Value: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Token(context.Background(), "gateway_b", refresh)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "tok-1", v)
	}
}

func TestMemoryTokenCache_RefreshesBeforeExpiry(t *testing.T) {
	c := NewMemoryTokenCache(time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	n := 0
	refresh := func(context.Context) (Token, error) {
		n++
		return Token{Value: "tok", ExpiresAt: now.Add(5 * time.Minute)}, nil
	}

	_, err := c.Token(context.Background(), "k", refresh)
	require.NoError(t, err)
	_, err = c.Token(context.Background(), "k", refresh)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Inside the skew window the token counts as expired.
	now = now.Add(4*time.Minute + 30*time.Second)
	_, err = c.Token(context.Background(), "k", refresh)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryTokenCache_RefreshErrorIsNotCached(t *testing.T) {
	c := NewMemoryTokenCache(time.Minute)
	boom := errors.New("login failed")

	_, err := c.Token(context.Background(), "k", func(context.Context) (Token, error) { return Token{}, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.Token(context.Background(), "k", func(context.Context) (Token, error) {
		return Token{Value: "ok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]Token
}

func (f *fakeKV) SetWithTTL(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(Token)
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.data[key]
	if ok {
		*dest.(*Token) = t
	}
	return ok, nil
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func TestSharedTokenCache_ReusesTokenAcrossInstances(t *testing.T) {
	kv := &fakeKV{data: map[string]Token{}}
	a := NewSharedTokenCache(kv, time.Minute, nil)
	b := NewSharedTokenCache(kv, time.Minute, nil)

	logins := 0
	refresh := func(context.Context) (Token, error) {
		logins++
		return Token{Value: "shared", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	va, err := a.Token(context.Background(), "gateway_b", refresh)
	require.NoError(t, err)
	vb, err := b.Token(context.Background(), "gateway_b", refresh)
	require.NoError(t, err)

	assert.Equal(t, "shared", va)
	assert.Equal(t, "shared", vb)
	assert.Equal(t, 1, logins)

	b.Invalidate(context.Background(), "gateway_b")
	_, err = b.Token(context.Background(), "gateway_b", refresh)
	require.NoError(t, err)
	assert.Equal(t, 2, logins)
}
