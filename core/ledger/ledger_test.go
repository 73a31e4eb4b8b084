package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/iesdispatch/core/model"
)

func TestSetActivityVector(t *testing.T) {
	a := New(3)
	require.NoError(t, a.SetActivityVector("pv", model.Electricity, []float64{1, 2, 3}, model.TrackerProduction))
	require.Error(t, a.SetActivityVector("pv", model.Electricity, []float64{1}, model.TrackerProduction))

	v, ok := a.Vector("pv", model.Electricity, model.TrackerProduction)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, v)

	v[0] = 99
	again, _ := a.Vector("pv", model.Electricity, model.TrackerProduction)
	assert.Equal(t, 1.0, again[0], "Vector must return a copy")
}

func TestSetActivityWindow(t *testing.T) {
	a := New(4)
	require.NoError(t, a.SetActivityWindow("tank", model.Hydrogen, model.TrackerLevel, 2, []float64{5, 6}))
	v, _ := a.Vector("tank", model.Hydrogen, model.TrackerLevel)
	assert.Equal(t, []float64{0, 0, 5, 6}, v)
	assert.Error(t, a.SetActivityWindow("tank", model.Hydrogen, model.TrackerLevel, 3, []float64{1, 2}))
	assert.Error(t, a.SetActivityWindow("", model.Hydrogen, model.TrackerLevel, 0, []float64{1}))
}

func TestBalanceIgnoresLevels(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetActivityVector("pv", model.Electricity, []float64{10}, model.TrackerProduction))
	require.NoError(t, a.SetActivityVector("load", model.Electricity, []float64{-4}, model.TrackerProduction))
	require.NoError(t, a.SetActivityVector("bat", model.Electricity, []float64{-6}, model.TrackerCharge))
	require.NoError(t, a.SetActivityVector("bat", model.Electricity, []float64{40}, model.TrackerLevel))
	require.NoError(t, a.SetActivityVector("ely", model.Hydrogen, []float64{3}, model.TrackerProduction))

	assert.InDelta(t, 0, a.Balance(model.Electricity, 0), 1e-12)
	assert.InDelta(t, 3, a.Balance(model.Hydrogen, 0), 1e-12)
	assert.Equal(t, []model.Resource{model.Electricity, model.Hydrogen}, a.Resources())
	assert.Len(t, a.Keys(), 5)
	assert.Equal(t, "bat/electricity/charge", a.Keys()[0].String())
}

func TestConcurrentReadWrite(t *testing.T) {
	a := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = a.SetActivityWindow("pv", model.Electricity, model.TrackerProduction, i, []float64{float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			_ = a.Balance(model.Electricity, 0)
		}()
	}
	wg.Wait()
	v, _ := a.Vector("pv", model.Electricity, model.TrackerProduction)
	for i, x := range v {
		assert.Equal(t, float64(i), x)
	}
	assert.InDelta(t, 28, a.Total("pv", model.Electricity, model.TrackerProduction, 1), 1e-12)
}
