package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/transformer-vae/model/input"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"
)

type idDecoder struct{}

func (idDecoder) Decode(ids []int32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " ")
}

func testModel(t *testing.T) *vae.Model {
	t.Helper()
	c := vae.DefaultConfig()
	c.VocabSize = 9
	c.HiddenSize = 6
	c.LatentSize = 3
	c.SetSeqSize = 4
	c.MMDBatchSize = 2
	m, err := vae.New(c)
	require.NoError(t, err)
	return m
}

func pair() []input.Sequence {
	return []input.Sequence{
		{InputIDs: []int32{2, 3, 4, 1}, AttentionMask: []int32{1, 1, 1, 1}},
		{InputIDs: []int32{5, 6, 1, 0}, AttentionMask: []int32{1, 1, 1, 0}},
	}
}

func TestInterpolateEndpoints(t *testing.T) {
	m := testModel(t)
	opts := vae.GenerateOptions{MaxLength: 4}

	table, err := Interpolate(m, pair(), []float64{0, 0.5, 1}, idDecoder{}, opts)
	require.NoError(t, err)
	require.Equal(t, KindInterpolate, table.Kind)
	require.Len(t, table.Rows, 5)

	require.Equal(t, Row{Ratio: StartAnchor, Text: "2 3 4 1"}, table.Rows[0])
	require.Equal(t, Row{Ratio: EndAnchor, Text: "5 6 1 0"}, table.Rows[4])

	z, err := m.EncodeLatent(input.Collate(pair()))
	require.NoError(t, err)
	direct, err := m.Generate(z, opts)
	require.NoError(t, err)

	require.Equal(t, 0.0, table.Rows[1].Ratio)
	require.Equal(t, idDecoder{}.Decode(direct[0]), table.Rows[1].Text)
	require.Equal(t, 1.0, table.Rows[3].Ratio)
	require.Equal(t, idDecoder{}.Decode(direct[1]), table.Rows[3].Text)
}

func TestInterpolateRestoresMode(t *testing.T) {
	m := testModel(t)

	_, err := Interpolate(m, pair(), DefaultRatios(), idDecoder{}, vae.GenerateOptions{})
	require.NoError(t, err)
	require.True(t, m.Training())

	m.SetTraining(false)
	_, err = Interpolate(m, pair()[:1], DefaultRatios(), idDecoder{}, vae.GenerateOptions{})
	require.True(t, errors.Is(err, ErrNotEnoughExamples))
	require.False(t, m.Training())

	m.SetTraining(true)
	bad := pair()
	bad[1].InputIDs = []int32{1, 2}
	_, err = Interpolate(m, bad, DefaultRatios(), idDecoder{}, vae.GenerateOptions{})
	require.True(t, errors.Is(err, vae.ErrDataShape))
	require.True(t, m.Training())
}

func TestRandomSamples(t *testing.T) {
	m := testModel(t)
	table, err := RandomSamples(m, DefaultSamples, rand.New(rand.NewPCG(1, 1)), idDecoder{}, vae.GenerateOptions{MinLength: 2, MaxLength: 3})
	require.NoError(t, err)
	require.Equal(t, KindRandom, table.Kind)
	require.Len(t, table.Rows, 10)
	for _, row := range table.Rows {
		require.GreaterOrEqual(t, len(strings.Fields(row.Text)), 2)
		require.LessOrEqual(t, len(strings.Fields(row.Text)), 3)
	}
	require.True(t, m.Training())

	_, err = RandomSamples(m, 0, rand.New(rand.NewPCG(1, 1)), idDecoder{}, vae.GenerateOptions{})
	require.Error(t, err)
}

func TestDefaultRatios(t *testing.T) {
	ratios := DefaultRatios()
	require.Len(t, ratios, 11)
	require.Equal(t, 0.0, ratios[0])
	require.Equal(t, 0.5, ratios[5])
	require.Equal(t, 1.0, ratios[10])
}

type memorySink struct {
	tables []*Table
	steps  []int
}

func (s *memorySink) RecordProbe(_ context.Context, step int, table *Table) error {
	s.tables = append(s.tables, table)
	s.steps = append(s.steps, step)
	return nil
}

func TestHook(t *testing.T) {
	m := testModel(t)
	sink := &memorySink{}
	var out bytes.Buffer

	h := NewHook(m, idDecoder{}, sink, 3, 0)
	h.Out = &out
	h.Plain = true

	require.NoError(t, h.AfterEvaluate(context.Background(), trainer.State{GlobalStep: 7}, pair()))
	require.Len(t, sink.tables, 2)
	require.Equal(t, KindInterpolate, sink.tables[0].Kind)
	require.Len(t, sink.tables[0].Rows, 13)
	require.Equal(t, KindRandom, sink.tables[1].Kind)
	require.Equal(t, []int{7, 7}, sink.steps)
	require.Contains(t, out.String(), "INTERPOLATION RATIO")
}

func TestHookSkipsInterpolationWithoutPair(t *testing.T) {
	m := testModel(t)
	sink := &memorySink{}

	err := NewHook(m, idDecoder{}, sink, 3, 0).AfterEvaluate(context.Background(), trainer.State{}, pair()[:1])
	require.True(t, errors.Is(err, ErrNotEnoughExamples))
	require.Len(t, sink.tables, 1)
	require.Equal(t, KindRandom, sink.tables[0].Kind)
}

func TestHookGenerateLength(t *testing.T) {
	m := testModel(t)
	sink := &memorySink{}

	h := NewHook(m, idDecoder{}, sink, 3, 2)
	require.Equal(t, 2, h.Generate.MinLength)
	require.Equal(t, 2, h.Generate.MaxLength)

	require.NoError(t, h.AfterEvaluate(context.Background(), trainer.State{}, pair()))
	require.Len(t, sink.tables, 2)

	interp := sink.tables[0].Rows
	for _, row := range interp[1 : len(interp)-1] {
		require.Len(t, strings.Fields(row.Text), 2, "Interpolation bei Ratio %v", row.Ratio)
	}
	for _, row := range sink.tables[1].Rows {
		require.Len(t, strings.Fields(row.Text), 2, "Stichprobe")
	}

	h = NewHook(m, idDecoder{}, nil, 3, 0)
	require.Equal(t, vae.GenerateOptions{MinLength: 4, MaxLength: 4}, h.Generate)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	table := &Table{Kind: KindInterpolate, Rows: []Row{{Ratio: -10, Text: "hallo"}, {Ratio: 0.5, Text: strings.Repeat("x", 200)}}}
	require.NoError(t, Render(&buf, table, false))
	require.Contains(t, buf.String(), "hallo")
	require.Contains(t, buf.String(), "-10")
	require.NotContains(t, buf.String(), strings.Repeat("x", 100))

	require.Error(t, Render(&buf, &Table{Kind: "tsne"}, false))
}
