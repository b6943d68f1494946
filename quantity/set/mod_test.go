package set

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/escrow/quantity"
	"golang.org/x/xerrors"
)

func TestNew(t *testing.T) {
	items := New("c", "a", "b", "a")
	require.Equal(t, Items{"a", "b", "c"}, items)
	require.True(t, items.Contains("b"))
	require.False(t, items.Contains("d"))

	require.Equal(t, Items{}, New())
}

func TestStrategy_With(t *testing.T) {
	s := NewStrategy()

	q, err := s.With(New("a", "c"), New("b"))
	require.NoError(t, err)
	require.Equal(t, Items{"a", "b", "c"}, q)

	_, err = s.With(New("a", "c"), New("c"))
	require.EqualError(t, err, "item 'c' is in both sets")

	_, err = s.With([]string{"a"}, New("c"))
	require.EqualError(t, err, "malformed set quantity '[a]': expected set.Items but got []string")

	_, err = s.With(New("a"), Items{"b", "a"})
	require.EqualError(t, err, "malformed set quantity '[b a]': identifiers must be sorted and unique")
}

func TestStrategy_Without(t *testing.T) {
	s := NewStrategy()

	q, err := s.Without(New("a", "b", "c"), New("b"))
	require.NoError(t, err)
	require.Equal(t, Items{"a", "c"}, q)

	_, err = s.Without(New("a"), New("b"))
	require.EqualError(t, err, "set underflow: '[b]' is not included in '[a]'")

	var underflow quantity.UnderflowError
	require.True(t, xerrors.As(err, &underflow))
}

func TestStrategy_Laws(t *testing.T) {
	s := NewStrategy()

	a := New("x", "y")
	b := New("z")
	c := New("w")

	ab, err := s.With(a, b)
	require.NoError(t, err)

	ba, err := s.With(b, a)
	require.NoError(t, err)
	require.True(t, s.Equals(ab, ba))

	abc, err := s.With(ab, c)
	require.NoError(t, err)

	bc, err := s.With(b, c)
	require.NoError(t, err)

	abc2, err := s.With(a, bc)
	require.NoError(t, err)
	require.True(t, s.Equals(abc, abc2))

	back, err := s.Without(ab, b)
	require.NoError(t, err)
	require.True(t, s.Equals(back, a))
}

func TestStrategy_InsistKind(t *testing.T) {
	s := NewStrategy()

	require.NoError(t, s.InsistKind(New("a")))
	require.NoError(t, s.InsistKind(s.Empty()))
	require.EqualError(t, s.InsistKind(Items{""}), "malformed set quantity '[]': empty identifier")
	require.Error(t, s.InsistKind(uint64(1)))

	require.False(t, s.Equals(New("a"), New("a", "b")))
	require.False(t, s.Equals(New("a"), New("b")))
	require.False(t, s.Equals(New("a"), uint64(1)))
	require.True(t, quantity.IsEmpty(s, Items{}))
}

func TestStrategy_Encode(t *testing.T) {
	s := NewStrategy()

	data, err := s.Encode(New("b", "a"))
	require.NoError(t, err)
	require.Equal(t, `["a","b"]`, string(data))

	q, err := s.Decode(data)
	require.NoError(t, err)
	require.Equal(t, Items{"a", "b"}, q)

	q, err = s.Decode([]byte("null"))
	require.NoError(t, err)
	require.Equal(t, Items{}, q)

	_, err = s.Decode([]byte(`["b","a"]`))
	require.EqualError(t, err, "malformed set quantity '[b a]': identifiers must be sorted and unique")

	_, err = s.Decode([]byte("{"))
	require.EqualError(t, err, "failed to unmarshal: unexpected end of JSON input")
}
