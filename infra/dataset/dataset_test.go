package dataset

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
)

const stackCSV = `state,strategy,price_structure,year,component,capacity,marginal_cost
TX,base,lmp,2030,ccgt,20,8
TX,base,lmp,2030,wind,10,5
TX,base,lmp,2030,peaker,30,100
CA,base,lmp,2030,solar,50,0
`

func TestReadCSV(t *testing.T) {
	entries, err := ReadCSV(strings.NewReader(stackCSV))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "ccgt", entries[0].Component)
	assert.Equal(t, 2030, entries[0].Labels.Year)
	assert.Equal(t, 8.0, entries[0].MarginalCost)
}

func TestReadCSVErrors(t *testing.T) {
	for name, data := range map[string]string{
		"missing column": "state,strategy\nTX,base\n",
		"bad year":       "state,strategy,price_structure,year,component,capacity,marginal_cost\nTX,b,l,soon,c,1,1\n",
		"negative cap":   "state,strategy,price_structure,year,component,capacity,marginal_cost\nTX,b,l,2030,c,-1,1\n",
		"no component":   "state,strategy,price_structure,year,component,capacity,marginal_cost\nTX,b,l,2030,,1,1\n",
	} {
		_, err := ReadCSV(strings.NewReader(data))
		assert.Error(t, err, name)
	}
}

func TestSQLiteStoreFeedsDataset(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "stacks.sqlite"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := ReadCSV(strings.NewReader(stackCSV))
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, entries))
	// re-importing replaces rows
	require.NoError(t, store.Upsert(ctx, entries[:1]))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ds := market.NewDataset(store, 0, nil)
	require.NoError(t, ds.Load(ctx))
	s, err := ds.Stack(model.CaseLabels{State: "TX", Strategy: "base", PriceStructure: "lmp", Year: 2030})
	require.NoError(t, err)
	price, idx, err := s.ClearingPrice(15)
	require.NoError(t, err)
	assert.Equal(t, 8.0, price)
	assert.Equal(t, 1, idx)
	assert.Len(t, ds.Labels(), 2)
}
