package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsDegenerateInterval(t *testing.T) {
	t.Parallel()
	s := NewStore()
	_, err := s.New(5, 5, 0, 0)
	require.Error(t, err)
	_, err = s.New(5, 4, 0, 0)
	require.Error(t, err)
}

func TestAccessorsRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ref, err := s.New(0, 10, 3, 2)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.Left(ref))
	require.Equal(t, 10.0, s.Right(ref))
	require.Equal(t, int32(3), s.Value(ref))
	require.Equal(t, int16(2), s.Population(ref))

	s.SetLeft(ref, 1)
	s.SetRight(ref, 9)
	s.SetValue(ref, 7)
	s.SetPopulation(ref, 1)
	require.Equal(t, 1.0, s.Left(ref))
	require.Equal(t, 9.0, s.Right(ref))
	require.Equal(t, int32(7), s.Value(ref))
	require.Equal(t, int16(1), s.Population(ref))
}

func TestAppendLinksBothDirections(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a, err := s.New(0, 5, 0, 0)
	require.NoError(t, err)
	b, err := s.New(5, 10, 0, 0)
	require.NoError(t, err)
	s.Append(a, b)
	require.Equal(t, b, s.Next(a))
	require.Equal(t, a, s.Prev(b))
}

func TestTailWalksToLastSegment(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a, _ := s.New(0, 5, 0, 0)
	b, _ := s.New(5, 10, 0, 0)
	c, _ := s.New(10, 15, 0, 0)
	s.Append(a, b)
	s.Append(b, c)
	require.Equal(t, c, s.Tail(a))
	require.Equal(t, c, s.Tail(c))
}

func TestFreeAllowsSlotReuse(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a, _ := s.New(0, 1, 0, 0)
	s.Free(a)
	b, err := s.New(2, 3, 0, 0)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, 2.0, s.Left(b))
}
