package txn

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(func() { m.Close() })
	return m
}

func props(kv ...any) map[string]storage.Value {
	out := make(map[string]storage.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := storage.ValueOf(kv[i+1])
		if err != nil {
			panic(err)
		}
		out[kv[i].(string)] = v
	}
	return out
}

// createPerson commits one Person vertex and returns its ID
func createPerson(t *testing.T, m *Manager, name string) uint64 {
	t.Helper()
	var id uint64
	err := m.Update(context.Background(), func(_ context.Context, tx *Tx) error {
		var err error
		id, err = tx.CreateVertex("Person", props("name", name))
		return err
	})
	require.NoError(t, err)
	return id
}

func uniqueNameIndex(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.CreateIndex(index.Definition{Label: "Person", Properties: []string{"name"}, Unique: true})
	require.NoError(t, err)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.Counter.GetValue()
}
