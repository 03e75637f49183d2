package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-lang/quill/heap"
)

func gather(t *testing.T, h *heap.Heap) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(h)))

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			if m.GetGauge() != nil {
				got[key] = m.GetGauge().GetValue()
			} else if m.GetCounter() != nil {
				got[key] = m.GetCounter().GetValue()
			}
		}
	}
	return got
}

func TestCollectorExposesHeapState(t *testing.T) {
	h := heap.New(heap.Config{NSize: 2000, VSize: 1 << 20})
	keep := h.Protect(h.AllocVector(heap.TypeVector, 10))
	for i := 0; i < 10; i++ {
		h.SetVectorElt(keep, i, h.Cons(h.Nil, h.Nil))
	}
	h.GC()

	var st heap.Stats
	h.ReadStats(&st)
	got := gather(t, h)

	assert.Equal(t, float64(st.NodesInUse), got["quill_heap_nodes_in_use"])
	assert.Equal(t, float64(st.NSize), got["quill_heap_node_trigger"])
	assert.Equal(t, float64(st.VSize), got["quill_heap_vector_trigger_cells"])
	assert.Equal(t, float64(st.SmallVallocSize), got["quill_heap_vector_cells_allocated{class=small}"])
	assert.Equal(t, float64(st.LargeVallocSize), got["quill_heap_vector_cells_allocated{class=large}"])
	assert.Equal(t, float64(st.VHeapFree), got["quill_heap_vector_cells_free"])
	assert.Equal(t, float64(st.CollectionsByLevel[2]), got["quill_heap_collections_total{level=2}"])
	assert.Equal(t, float64(st.FinalizerRuns), got["quill_heap_finalizer_runs_total"])
	h.Unprotect(1)
}

func TestCollectorTracksCollections(t *testing.T) {
	h := heap.New(heap.Config{NSize: 2000, VSize: 1 << 20})
	before := gather(t, h)["quill_heap_collections_total{level=2}"]
	h.GC()
	h.GC()
	after := gather(t, h)["quill_heap_collections_total{level=2}"]
	assert.Equal(t, before+2, after)
}
