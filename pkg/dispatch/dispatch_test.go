package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/pkg/message"
)

func newRequest(t *testing.T, topic string, role message.Role) *message.Message {
	t.Helper()
	m, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	m.SetTopic(topic)
	m.SetRolemask(role)
	return m
}

func TestFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	var calls []string
	r.Register(MaskFor(message.TypeRequest), "kvs.*", message.RoleAll, func(string, *message.Message) {
		calls = append(calls, "first")
	})
	r.Register(MaskFor(message.TypeRequest), "kvs.ll", message.RoleAll, func(string, *message.Message) {
		calls = append(calls, "second")
	})

	err := r.Dispatch("peer", newRequest(t, "kvs.ll", message.RoleUser))
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, calls)
}

func TestNoSuchService(t *testing.T) {
	r := NewRegistry()
	err := r.Dispatch("peer", newRequest(t, "kvs.ll", message.RoleUser))
	require.Error(t, err)
	var nss *message.NoSuchServiceError
	require.ErrorAs(t, err, &nss)
}

func TestPermissionDenied(t *testing.T) {
	r := NewRegistry()
	r.Register(MaskFor(message.TypeRequest), "kvs.ll", message.RoleOwner, func(string, *message.Message) {
		t.Fatal("handler should not run")
	})
	err := r.Dispatch("peer", newRequest(t, "kvs.ll", message.RoleUser))
	require.Error(t, err)
	var perm *message.PermissionDeniedError
	require.ErrorAs(t, err, &perm)
}

func TestGlobMatching(t *testing.T) {
	r := NewRegistry()
	matched := false
	r.Register(MaskFor(message.TypeRequest), "kvs.?", message.RoleAll, func(string, *message.Message) {
		matched = true
	})
	err := r.Dispatch("peer", newRequest(t, "kvs.x", message.RoleAll))
	require.NoError(t, err)
	require.True(t, matched)
}

func TestMatchtagAllocatorDistinctTags(t *testing.T) {
	a := NewMatchtagAllocator()
	t1 := a.Allocate()
	t2 := a.Allocate()
	require.NotEqual(t, t1, t2)
	require.NotZero(t, t1)
	require.NotZero(t, t2)
}

func TestMatchtagReuseAfterFree(t *testing.T) {
	a := NewMatchtagAllocator()
	t1 := a.Allocate()
	require.NoError(t, a.Free(t1))
	t2 := a.Allocate()
	require.Equal(t, t1, t2)
}

func TestMatchtagDoubleFreeRejected(t *testing.T) {
	a := NewMatchtagAllocator()
	tag := a.Allocate()
	require.NoError(t, a.Free(tag))
	err := a.Free(tag)
	require.ErrorIs(t, err, ErrDoubleFree)
}

func TestPendingTableRemoveBySender(t *testing.T) {
	pt := NewPendingTable()
	pt.Add(&Pending{Matchtag: 1, Sender: "a"})
	pt.Add(&Pending{Matchtag: 2, Sender: "b"})
	pt.Add(&Pending{Matchtag: 3, Sender: "a"})

	removed := pt.RemoveBySender("a")
	require.Len(t, removed, 2)
	require.Equal(t, 1, pt.Len())
	_, ok := pt.Get(2)
	require.True(t, ok)
}
