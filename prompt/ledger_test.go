package prompt

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"path/filepath"
	"slices"
	"testing"
)

func TestCursor_Point(t *testing.T) {
	p := Cursor{Frame: 3, Row: 10, Col: 20}.Point()
	assert.Equal(t, Point{X: 20, Y: 10}, p)
}

func TestLedger_AddAccumulates(t *testing.T) {
	l := NewLedger()

	e := l.Add(1, 0, Point{X: 1, Y: 1}, Positive)
	assert.Equal(t, 0, e.Frame)
	assert.Len(t, e.Points, 1)

	l.Add(1, 0, Point{X: 2, Y: 2}, Negative)
	l.Add(1, 4, Point{X: 3, Y: 3}, Positive)
	e = l.Add(1, 0, Point{X: 4, Y: 4}, Positive)

	assert.Equal(t, []Point{{1, 1}, {2, 2}, {4, 4}}, e.Points)
	assert.Equal(t, []Polarity{Positive, Negative, Positive}, e.Polarities)
	assert.Equal(t, 2, l.Len())

	other, ok := l.Entry(1, 4)
	require.True(t, ok)
	assert.Equal(t, []Point{{3, 3}}, other.Points)

	_, ok = l.Entry(1, 9)
	assert.False(t, ok)
	_, ok = l.Entry(2, 0)
	assert.False(t, ok)
}

func TestLedger_EntryIsCopy(t *testing.T) {
	l := NewLedger()
	e := l.Add(1, 0, Point{X: 1, Y: 1}, Positive)
	e.Points[0] = Point{X: 99, Y: 99}

	stored, ok := l.Entry(1, 0)
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 1}, stored.Points[0])
}

func TestLedger_ReplayOrder(t *testing.T) {
	l := NewLedger()
	l.Add(5, 2, Point{X: 1}, Positive)
	l.Add(3, 0, Point{X: 2}, Positive)
	l.Add(5, 1, Point{X: 3}, Negative)
	l.Add(5, 2, Point{X: 4}, Negative)

	var got []Prompt
	for p := range l.Replay() {
		got = append(got, p)
	}
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].ObjectID)
	assert.Equal(t, 2, got[0].Frame)
	assert.Equal(t, []Point{{X: 1}, {X: 4}}, got[0].Points)
	assert.Equal(t, 5, got[1].ObjectID)
	assert.Equal(t, 1, got[1].Frame)
	assert.Equal(t, 3, got[2].ObjectID)
	assert.Equal(t, []int{5, 3}, l.Objects())

	// 提前终止
	n := 0
	for range l.Replay() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLedger_ReplayReproduces(t *testing.T) {
	l := NewLedger()
	l.Add(1, 0, Point{X: 1, Y: 2}, Positive)
	l.Add(2, 3, Point{X: 5, Y: 6}, Negative)
	l.Add(1, 0, Point{X: 3, Y: 4}, Negative)

	rebuilt := NewLedger()
	for p := range l.Replay() {
		for i, pt := range p.Points {
			rebuilt.Add(p.ObjectID, p.Frame, pt, p.Polarities[i])
		}
	}
	assert.Equal(t, slices.Collect(l.Replay()), slices.Collect(rebuilt.Replay()))
}

func TestLedger_Clear(t *testing.T) {
	l := NewLedger()
	l.Add(1, 0, Point{}, Positive)
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Objects())

	l.Add(2, 0, Point{}, Positive)
	assert.Equal(t, []int{2}, l.Objects())

	var zero Ledger
	zero.Add(1, 1, Point{}, Negative)
	assert.Equal(t, 1, zero.Len())
}

func TestLedger_YAMLRoundTrip(t *testing.T) {
	l := NewLedger()
	l.Add(2, 1, Point{X: 10, Y: 20}, Positive)
	l.Add(2, 1, Point{X: 11, Y: 21}, Negative)
	l.Add(7, 0, Point{X: 1.5, Y: 2.5}, Positive)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, SaveFile(path, l))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, slices.Collect(l.Replay()), slices.Collect(loaded.Replay()))
}

func TestLedger_YAMLValidation(t *testing.T) {
	var l Ledger
	err := yaml.Unmarshal([]byte(`
objects:
  - id: 1
    frames:
      - frame: 0
        points: [[1, 2], [3, 4]]
        polarities: [1]
`), &l)
	require.Error(t, err)

	err = yaml.Unmarshal([]byte(`
objects:
  - id: 1
    frames:
      - frame: 0
        points: [[1, 2]]
        polarities: [2]
`), &l)
	require.Error(t, err)

	err = yaml.Unmarshal([]byte(`
objects:
  - id: 1
    frames:
      - frame: 0
        points: [[1, 2, 3]]
        polarities: [1]
`), &l)
	require.Error(t, err)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := NewLedger()
	l.Add(4, 2, Point{X: 1, Y: 2}, Positive)
	l.Add(1, 0, Point{X: 3, Y: 4}, Negative)
	l.Add(4, 2, Point{X: 5, Y: 6}, Negative)
	require.NoError(t, s.Save(ctx, "s1", l))

	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, slices.Collect(l.Replay()), slices.Collect(loaded.Replay()))

	// 再次保存会替换旧快照
	l.Clear()
	l.Add(9, 9, Point{X: 7, Y: 8}, Positive)
	require.NoError(t, s.Save(ctx, "s1", l))
	loaded, err = s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []int{9}, loaded.Objects())

	empty, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	ids, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}
