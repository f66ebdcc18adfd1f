package join

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sortjoin/record"
)

func mergeAll(t *testing.T, m *Merger, entities, facts Cursor) ([]record.Group, Stats) {
	t.Helper()
	var groups []record.Group
	stats, err := m.Merge(context.Background(), entities, facts, func(g record.Group) error {
		groups = append(groups, g)
		return nil
	})
	require.NoError(t, err)
	return groups, stats
}

func group(key, desc string, values ...string) record.Group {
	return record.Group{Key: key, Descriptor: desc, Values: values}
}

func TestMerge_AttachesFactsToEntities(t *testing.T) {
	m := NewMerger(record.DefaultLayout)

	groups, stats := mergeAll(t, m,
		NewSliceCursor("1,A", "2,B", "3,C"),
		NewSliceCursor("1,2024-01-01,10", "1,2024-01-02,20", "3,2024-01-01,30"),
	)

	assert.Equal(t, []record.Group{
		group("1", "A", "10", "20"),
		group("2", "B"),
		group("3", "C", "30"),
	}, groups)
	assert.Equal(t, Stats{Entities: 3, Facts: 3, Attached: 3, EmptyGroups: 1}, stats)
}

func TestMerge_EmptyFacts(t *testing.T) {
	groups, stats := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("1,A", "2,B"),
		NewSliceCursor(),
	)

	assert.Equal(t, []record.Group{group("1", "A"), group("2", "B")}, groups)
	assert.Equal(t, int64(2), stats.EmptyGroups)
}

func TestMerge_EmptyEntities(t *testing.T) {
	facts := NewSliceCursor("1,d,10", "2,d,20")

	groups, stats := mergeAll(t, NewMerger(record.DefaultLayout), NewSliceCursor(), facts)

	assert.Empty(t, groups)
	assert.Zero(t, stats.Facts)
	assert.Zero(t, facts.pos, "fact stream must not be read without entities")
}

func TestMerge_PendingFactWaitsForLaterEntity(t *testing.T) {
	groups, stats := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("1,A", "2,B", "3,C", "4,D"),
		NewSliceCursor("3,d,30", "3,d,31", "4,d,40"),
	)

	assert.Equal(t, []record.Group{
		group("1", "A"),
		group("2", "B"),
		group("3", "C", "30", "31"),
		group("4", "D", "40"),
	}, groups)
	assert.Equal(t, int64(4), stats.Attached)
	assert.Zero(t, stats.Orphans)
}

func TestMerge_DropsOrphanFacts(t *testing.T) {
	groups, stats := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("1,A", "3,C", "5,E"),
		NewSliceCursor(
			"0,d,1", // before every entity
			"1,d,10",
			"2,d,20", // between 1 and 3
			"2,d,21",
			"3,d,30",
			"4,d,40", // pending when 5 is reached, then dropped
			"5,d,50",
			"9,d,90", // after every entity
		),
	)

	assert.Equal(t, []record.Group{
		group("1", "A", "10"),
		group("3", "C", "30"),
		group("5", "E", "50"),
	}, groups)
	assert.Equal(t, Stats{Entities: 3, Facts: 8, Attached: 3, Orphans: 5}, stats)
	assert.Equal(t, stats.Facts, stats.Attached+stats.Orphans)
}

func TestMerge_OrphanPendingBeforeMatchingEntity(t *testing.T) {
	// The fact for key 2 is read while collecting 1 and is pending when 3
	// arrives. It must be dropped without costing 3 its own facts.
	groups, _ := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("1,A", "3,C"),
		NewSliceCursor("2,d,20", "3,d,30", "3,d,31"),
	)

	assert.Equal(t, []record.Group{group("1", "A"), group("3", "C", "30", "31")}, groups)
}

func TestMerge_KeysCompareLexicographically(t *testing.T) {
	groups, _ := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("10,ten", "2,two", "9,nine"),
		NewSliceCursor("10,d,100", "2,d,20", "9,d,90"),
	)

	assert.Equal(t, []record.Group{
		group("10", "ten", "100"),
		group("2", "two", "20"),
		group("9", "nine", "90"),
	}, groups)
}

func TestMerge_DuplicateEntityKeys(t *testing.T) {
	groups, _ := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor("1,A", "1,A again", "2,B"),
		NewSliceCursor("1,d,10", "1,d,11", "2,d,20"),
	)

	assert.Equal(t, []record.Group{
		group("1", "A", "10", "11"),
		group("1", "A again"),
		group("2", "B", "20"),
	}, groups)
}

func TestMerge_HeadersJoinLikeRecords(t *testing.T) {
	groups, _ := mergeAll(t, NewMerger(record.DefaultLayout),
		NewSliceCursor(record.EntityHeader, "1,A"),
		NewSliceCursor(record.FactHeader, "1,2024-01-01,10"),
	)

	require.Len(t, groups, 2)
	assert.Equal(t, `"ID","DESCRIPTION","VALUE"`, groups[0].Encode(","))
	assert.Equal(t, "1,A,10", groups[1].Encode(","))
}

func TestMerge_CustomLayout(t *testing.T) {
	layout := record.Layout{
		Delimiter:       ";",
		EntityKeyField:  1,
		DescriptorField: 0,
		FactKeyField:    2,
		ValueField:      0,
	}

	groups, _ := mergeAll(t, NewMerger(layout),
		NewSliceCursor("apple;a", "banana;b"),
		NewSliceCursor("1.5;x;a", "2.5;y;b", "3.5;z;b"),
	)

	assert.Equal(t, []record.Group{group("a", "apple", "1.5"), group("b", "banana", "2.5", "3.5")}, groups)
}

func TestMerge_OrderViolation(t *testing.T) {
	t.Run("entities", func(t *testing.T) {
		_, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
			NewSliceCursor("2,B", "1,A"),
			NewSliceCursor(),
			func(record.Group) error { return nil },
		)
		require.ErrorIs(t, err, ErrOrderViolation)
		assert.ErrorContains(t, err, "entities line 2")
	})

	t.Run("facts", func(t *testing.T) {
		_, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
			NewSliceCursor("1,A", "2,B"),
			NewSliceCursor("2,d,20", "1,d,10"),
			func(record.Group) error { return nil },
		)
		require.ErrorIs(t, err, ErrOrderViolation)
		assert.ErrorContains(t, err, "facts line 2")
	})

	t.Run("unchecked", func(t *testing.T) {
		m := NewMerger(record.DefaultLayout, func(o *Options) { o.CheckOrder = false })
		groups, _ := mergeAll(t, m,
			NewSliceCursor("2,B", "1,A"),
			NewSliceCursor("2,d,20"),
		)
		assert.Equal(t, []record.Group{group("2", "B", "20"), group("1", "A")}, groups)
	})
}

func TestMerge_MalformedRecords(t *testing.T) {
	t.Run("entity", func(t *testing.T) {
		_, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
			NewSliceCursor("1,A", "2"),
			NewSliceCursor(),
			func(record.Group) error { return nil },
		)
		require.ErrorIs(t, err, record.ErrMalformedRecord)

		var me *record.MalformedError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, StreamEntities, me.Stream)
		assert.Equal(t, int64(2), me.Line)
		assert.Equal(t, 2, me.Want)
	})

	t.Run("fact", func(t *testing.T) {
		_, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
			NewSliceCursor("1,A"),
			NewSliceCursor("1,2024-01-01"),
			func(record.Group) error { return nil },
		)
		var me *record.MalformedError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, StreamFacts, me.Stream)
		assert.Equal(t, int64(1), me.Line)
		assert.Equal(t, 2, me.Fields)
		assert.Equal(t, 3, me.Want)
	})
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestMerge_SourceUnavailable(t *testing.T) {
	errDisk := errors.New("disk gone")

	_, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
		NewSliceCursor("1,A"),
		NewLineCursor(failingReader{errDisk}),
		func(record.Group) error { return nil },
	)
	require.ErrorIs(t, err, record.ErrSourceUnavailable)
	assert.ErrorIs(t, err, errDisk)

	_, err = NewMerger(record.DefaultLayout).Merge(context.Background(),
		NewLineCursor(failingReader{errDisk}),
		NewSliceCursor(),
		func(record.Group) error { return nil },
	)
	assert.ErrorIs(t, err, record.ErrSourceUnavailable)
}

func TestMerge_EmitError(t *testing.T) {
	errFull := errors.New("output full")
	calls := 0

	stats, err := NewMerger(record.DefaultLayout).Merge(context.Background(),
		NewSliceCursor("1,A", "2,B", "3,C"),
		NewSliceCursor(),
		func(record.Group) error {
			calls++
			if calls == 2 {
				return errFull
			}
			return nil
		},
	)
	require.ErrorIs(t, err, errFull)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), stats.Entities)
}

func TestMerge_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMerger(record.DefaultLayout).Merge(ctx,
		NewSliceCursor("1,A"),
		NewSliceCursor(),
		func(record.Group) error { return nil },
	)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGroups(t *testing.T) {
	m := NewMerger(record.DefaultLayout)

	var keys []string
	for g, err := range m.Groups(context.Background(),
		NewSliceCursor("1,A", "2,B", "3,C"),
		NewSliceCursor("2,d,20"),
	) {
		require.NoError(t, err)
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"1", "2", "3"}, keys)
}

func TestGroups_Break(t *testing.T) {
	entities := NewSliceCursor("1,A", "2,B", "3,C")

	for g, err := range NewMerger(record.DefaultLayout).Groups(context.Background(), entities, NewSliceCursor()) {
		require.NoError(t, err)
		if g.Key == "2" {
			break
		}
	}
	assert.Equal(t, 2, entities.pos)
}

func TestGroups_YieldsError(t *testing.T) {
	var errs []error
	for _, err := range NewMerger(record.DefaultLayout).Groups(context.Background(),
		NewSliceCursor("1,A", "bad"),
		NewSliceCursor(),
	) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], record.ErrMalformedRecord)
}

func TestLineCursor(t *testing.T) {
	c := NewLineCursor(strings.NewReader("a,1\r\nb,2\n\nc,3"))

	var got []string
	for c.Next() {
		got = append(got, c.Record())
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []string{"a,1", "b,2", "", "c,3"}, got)
	assert.False(t, c.Next())
}
