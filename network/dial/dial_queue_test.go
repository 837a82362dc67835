package dial

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/0xPolygon/edge-p2p/network/enode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeTarget(b byte) *Target {
	var id enode.ID
	id[0] = b

	return NodeTarget(enode.New(id, net.ParseIP("10.0.0.1"), 30300+uint16(b)))
}

func TestDialQueue(t *testing.T) {
	q := NewDialQueue()
	targets := [3]*Target{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)

	defer cancel()

	for i := range targets {
		targets[i] = nodeTarget(byte(i + 1))

		if i != 1 {
			q.AddTask(targets[i], 8)
		} else {
			q.AddTask(targets[i], 1)
		}

		assert.Equal(t, i+1, q.Len())
	}

	q.AddTask(targets[0], 8) // existing task, same priority
	assert.Equal(t, 3, q.Len())

	q.AddTask(targets[2], 1) // existing task, more priority
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, targets[1].Key(), q.PopTask().GetTarget().Key())
	assert.Equal(t, targets[2].Key(), q.PopTask().GetTarget().Key())
	assert.Equal(t, targets[0].Key(), q.PopTask().GetTarget().Key())
	assert.Equal(t, 0, q.Len())

	assert.Nil(t, q.PopTask())

	done := make(chan struct{})

	go func() {
		q.Wait(ctx) // wait for first update
		q.Wait(ctx) // wait for second update
		done <- struct{}{}
	}()

	select {
	case <-done:
		t.Fatal("not expected")
	case <-time.After(500 * time.Millisecond):
	}

	q.AddTask(targets[0], 1)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("timeout")
	}
}

func TestDialQueue_EqualPriorityIsFIFO(t *testing.T) {
	q := NewDialQueue()

	for i := byte(10); i > 0; i-- {
		q.AddTask(nodeTarget(i), PriorityRandomDial)
	}

	for i := byte(10); i > 0; i-- {
		assert.Equal(t, nodeTarget(i).Key(), q.PopTask().GetTarget().Key())
	}
}

func TestDialQueue_Close(t *testing.T) {
	q := NewDialQueue()

	q.Close()
	q.Close()

	assert.True(t, q.Wait(context.Background()))
}

func TestDel(t *testing.T) {
	type Action string

	const (
		ActionAdd    Action = "add"
		ActionDelete Action = "delete"
		ActionPop    Action = "pop"
	)

	type task struct {
		addr   string
		action Action
	}

	tests := []struct {
		name        string
		tasks       []task
		expectedLen int
	}{
		{
			name:        "should be able to push element",
			tasks:       []task{{addr: "a", action: ActionAdd}},
			expectedLen: 1,
		},
		{
			name:        "should be able to delete",
			tasks:       []task{{addr: "a", action: ActionAdd}, {addr: "a", action: ActionDelete}},
			expectedLen: 0,
		},
		{
			name:        "should succeed on removing non-exist data",
			tasks:       []task{{addr: "a", action: ActionAdd}, {addr: "b", action: ActionDelete}},
			expectedLen: 1,
		},
		{
			name:        "should be able to pop",
			tasks:       []task{{addr: "a", action: ActionAdd}, {addr: "a", action: ActionPop}},
			expectedLen: 0,
		},
		{
			name: "should be able to delete popped data",
			tasks: []task{
				{addr: "a", action: ActionAdd},
				{addr: "a", action: ActionPop},
				{addr: "a", action: ActionDelete},
			},
			expectedLen: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			q := NewDialQueue()

			for _, task := range tt.tasks {
				target, err := AddrTarget(fmt.Sprintf("%s.example:30303", task.addr))
				require.NoError(t, err)

				switch task.action {
				case ActionAdd:
					q.AddTask(target, PriorityRequestedDial)
				case ActionDelete:
					q.DeleteTask(target.Key())
				case ActionPop:
					d := q.PopTask()
					assert.Equal(t, target.Key(), d.GetTarget().Key())
				default:
					t.Errorf("unsupported action: %s", task.action)
				}
			}

			assert.Equal(t, tt.expectedLen, q.Len())
		})
	}
}

func TestTargets(t *testing.T) {
	n := nodeTarget(7)

	assert.Equal(t, n.Node.ID.String(), n.Key())
	assert.Equal(t, "10.0.0.1:30307", n.Addr)
	assert.False(t, n.Pinned)
	assert.True(t, PinnedTarget(n.Node).Pinned)

	addr, err := AddrTarget("127.0.0.1:30303")
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:30303", addr.Key())

	for _, bad := range []string{"127.0.0.1", ":30303", "127.0.0.1:99999", "127.0.0.1:port"} {
		_, err := AddrTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestSlots(t *testing.T) {
	t.Parallel()

	slots := NewSlots(2)
	assert.Equal(t, 2, slots.Available())

	slots.Release() // should do nothing
	assert.Equal(t, 2, slots.Available())

	assert.False(t, slots.Take(context.Background()))
	assert.False(t, slots.Take(context.Background()))
	assert.Equal(t, 0, slots.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.True(t, slots.Take(ctx))

	go func() {
		<-time.After(100 * time.Millisecond)

		slots.Release()
	}()

	start := time.Now()

	assert.False(t, slots.Take(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
