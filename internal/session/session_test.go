package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/models"
)

func TestEpochsAreMonotonic(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Select(Selection{Organisation: "org1"}))
	sel, epoch := s.Update(func(sel *Selection) { sel.Project = "proj1" })
	assert.Equal(t, uint64(2), epoch)
	assert.Equal(t, Selection{Organisation: "org1", Project: "proj1"}, sel)

	cur, e := s.Current()
	assert.Equal(t, sel, cur)
	assert.Equal(t, epoch, e)
}

func TestConcurrentUpdatesKeepEveryChange(t *testing.T) {
	s := New(0)
	s.Select(Selection{Organisation: "org1"})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(sel *Selection) { sel.Project += "x" })
		}()
	}
	wg.Wait()

	sel, epoch := s.Current()
	assert.Len(t, sel.Project, n)
	assert.Equal(t, uint64(n+1), epoch)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	s := New(0)
	s.Select(Selection{Organisation: "org1", ResourceType: models.ResourceEndpoint})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Fetch(context.Background(), s, func(ctx context.Context, sel Selection) (string, error) {
			close(started)
			<-ctx.Done()
			return sel.Organisation, nil
		})
		done <- err
	}()

	<-started
	s.Select(Selection{Organisation: "org2"})
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}

	got, err := Fetch(context.Background(), s, func(_ context.Context, sel Selection) (string, error) {
		return sel.Organisation, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "org2", got)
}

func TestFetchTimeout(t *testing.T) {
	s := New(20 * time.Millisecond)
	_, err := Fetch(context.Background(), s, func(ctx context.Context, _ Selection) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	boom := errors.New("boom")
	_, err = Fetch(context.Background(), s, func(context.Context, Selection) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestManagerKeepsSessionsApart(t *testing.T) {
	m := NewManager(time.Second)
	a, b := m.Get("a"), m.Get("b")
	a.Select(Selection{Organisation: "org1"})
	assert.Same(t, a, m.Get("a"))
	sel, epoch := b.Current()
	assert.Equal(t, Selection{}, sel)
	assert.Zero(t, epoch)

	m.Drop("a")
	assert.NotSame(t, a, m.Get("a"))
}
