package groutine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoPropagatesName(t *testing.T) {
	var got string
	done := Go(context.Background(), "pusher", func(ctx context.Context) {
		got = Name(ctx)
	})
	<-done
	assert.Equal(t, "pusher", got)
}

func TestGoNilParent(t *testing.T) {
	var ran bool
	//nolint:staticcheck // nil parent is part of the contract
	<-Go(nil, "x", func(ctx context.Context) { ran = ctx != nil })
	assert.True(t, ran)
}

func TestNameWithoutGo(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck
}
