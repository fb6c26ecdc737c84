package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEventHandler_Handle(t *testing.T) {
	handler := NewMockEventHandler("finance.document.post")
	scope := NewAgencyScope()
	event := NewTestEvent("finance.document.post", scope)

	err := handler.Handle(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, []string{"finance.document.post"}, handler.EventTypes())
	assert.Equal(t, 1, handler.HandledCount())
	assert.Equal(t, []string{"finance.document.post"}, handler.HandledTypes())
	assert.Equal(t, scope, handler.Handled()[0].Scope())
}

func TestMockEventHandler_SetErrorAndReset(t *testing.T) {
	handler := NewMockEventHandler()
	handler.SetError(assert.AnError)

	err := handler.Handle(context.Background(), NewTestEvent("x", NewAgencyScope()))
	assert.Equal(t, assert.AnError, err)

	handler.Reset()
	assert.Equal(t, 0, handler.HandledCount())
	assert.NoError(t, handler.Handle(context.Background(), NewTestEvent("x", NewAgencyScope())))
}

func TestWaitForEventCount(t *testing.T) {
	handler := NewMockEventHandler()
	scope := NewAgencyScope()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = handler.Handle(context.Background(), NewTestEvent("a", scope))
		_ = handler.Handle(context.Background(), NewTestEvent("b", scope))
	}()

	assert.True(t, WaitForEventCount(t, handler, 2, time.Second))
}

func TestWaitForCondition_Timeout(t *testing.T) {
	var flag atomic.Bool
	assert.False(t, WaitForCondition(t, flag.Load, 30*time.Millisecond, 5*time.Millisecond))

	flag.Store(true)
	assert.True(t, WaitForCondition(t, flag.Load, 30*time.Millisecond, 5*time.Millisecond))
}

func TestContextSessions(t *testing.T) {
	scope := NewSubAccountScope(NewAgencyScope())
	caller, err := ContextSessions{}.Resolve(UserContext(scope, "*"))
	require.NoError(t, err)
	assert.Equal(t, scope, caller.Scope)
	assert.Equal(t, []string{"*"}, caller.Capabilities)

	_, err = ContextSessions{}.Resolve(context.Background())
	RequireDomainCode(t, err, shared.CodeUnauthorized)
}

func TestNewTestUUID_Deterministic(t *testing.T) {
	assert.Equal(t, NewTestUUID("seed"), NewTestUUID("seed"))
	assert.NotEqual(t, NewTestUUID("seed"), NewTestUUID("other"))
	assert.NotEqual(t, uuid.Nil, TestAgencyID())
}
