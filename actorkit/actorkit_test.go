package actorkit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardcx/shardcx/identity"
)

func TestExecuteInActorRunsInOrder(t *testing.T) {
	c := New(identity.ClientID{ID: "c1"}, "p1")
	defer c.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 1; i <= 3; i++ {
		i := i
		c.ExecuteInActor(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestExecuteInActorAfterFiresInDeadlineOrder(t *testing.T) {
	c := New(identity.ClientID{ID: "c1"}, "p1")
	defer c.Close()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(3)

	c.ExecuteInActorAfter(func() {
		mu.Lock()
		order = append(order, "late")
		mu.Unlock()
		wg.Done()
	}, 60*time.Millisecond)
	c.ExecuteInActorAfter(func() {
		mu.Lock()
		order = append(order, "early")
		mu.Unlock()
		wg.Done()
	}, 5*time.Millisecond)
	c.ExecuteInActorAfter(func() {
		mu.Lock()
		order = append(order, "mid")
		mu.Unlock()
		wg.Done()
	}, 30*time.Millisecond)

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"early", "mid", "late"}, order)
}

func TestCloseStopsFurtherTimers(t *testing.T) {
	c := New(identity.ClientID{ID: "c1"}, "p1")

	fired := make(chan struct{}, 1)
	c.ExecuteInActorAfter(func() { fired <- struct{}{} }, 50*time.Millisecond)
	c.Close()

	select {
	case <-fired:
		t.Fatal("timer fired after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for goroutines")
	}
}
