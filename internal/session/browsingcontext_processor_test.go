package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantcarthew/bidictl/internal/bidiproto"
)

func TestHandleContextGetTreeReportsParentAndChildren(t *testing.T) {
	s := newTestSession()
	s.contexts.CreateContext("root", "", "", "target-1", "sess-1")
	s.contexts.CreateContext("child", "root", "", "target-2", "sess-2")

	result, err := s.handleContextGetTree(context.Background(), nil)
	require.NoError(t, err)

	contexts := result.(map[string]interface{})["contexts"].([]map[string]interface{})
	require.Len(t, contexts, 2)

	byID := map[string]map[string]interface{}{}
	for _, c := range contexts {
		byID[c["context"].(string)] = c
	}
	assert.Nil(t, byID["root"]["parent"])
	assert.Equal(t, "root", byID["child"]["parent"])
}

func TestHandleContextNavigateNoSuchContext(t *testing.T) {
	s := newTestSession()
	raw := []byte(`{"context":"missing","url":"https://example.com","wait":"none"}`)
	_, err := s.handleContextNavigate(context.Background(), raw)
	require.Error(t, err)

	bidiErr, ok := err.(*bidiproto.Error)
	require.True(t, ok)
	assert.Equal(t, bidiproto.ErrNoSuchFrame, bidiErr.Kind)
}

func TestHandleContextCloseNoSuchContext(t *testing.T) {
	s := newTestSession()
	raw := []byte(`{"context":"missing"}`)
	_, err := s.handleContextClose(context.Background(), raw)
	require.Error(t, err)

	bidiErr, ok := err.(*bidiproto.Error)
	require.True(t, ok)
	assert.Equal(t, bidiproto.ErrNoSuchFrame, bidiErr.Kind)
}

func TestHandleContextSetViewportNoSuchContext(t *testing.T) {
	s := newTestSession()
	raw := []byte(`{"context":"missing","viewport":{"width":1000,"height":1000}}`)
	_, err := s.handleContextSetViewport(context.Background(), raw)
	require.Error(t, err)

	bidiErr, ok := err.(*bidiproto.Error)
	require.True(t, ok)
	assert.Equal(t, bidiproto.ErrNoSuchFrame, bidiErr.Kind)
}
