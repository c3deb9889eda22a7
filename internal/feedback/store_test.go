package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 12, 6, 0, 0, 0, time.UTC))
	s := NewStore(10, nil, clock, nil)

	fb, err := s.Submit(context.Background(), "  Juan  ", "juan@example.com", "  siren not working  ")
	require.NoError(t, err)
	assert.NotEmpty(t, fb.ID)
	assert.Equal(t, "Juan", fb.Name)
	assert.Equal(t, "siren not working", fb.Message)
	assert.Equal(t, clock.Now().UTC(), fb.CreatedAt)

	list := s.List(0)
	require.Len(t, list, 1)
	assert.Equal(t, fb.ID, list[0].ID)
}

func TestSubmitEmptyMessage(t *testing.T) {
	s := NewStore(10, nil, clockwork.NewFakeClock(), nil)
	_, err := s.Submit(context.Background(), "Juan", "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, s.List(0))
}

func TestBufferBounded(t *testing.T) {
	s := NewStore(2, nil, clockwork.NewFakeClock(), nil)
	for _, msg := range []string{"first", "second", "third"} {
		_, err := s.Submit(context.Background(), "", "", msg)
		require.NoError(t, err)
	}
	list := s.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.Equal(t, "third", list[1].Message)
}
