package txn

import (
	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// Schema and index changes are applied outside transactions, against the
// latest committed version, and publish a new version of their own.
// Transactions that began earlier validate against them at commit.

// CreateIndex builds a secondary index over committed data
func (m *Manager) CreateIndex(def index.Definition) (index.Definition, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	latest := m.load()
	cat := latest.catalog.Copy()
	def, err := cat.CreateIndex(def, latest.graph)
	if err != nil {
		return def, err
	}

	seq := latest.seq + 1
	if err := m.appendJournal(wal.OpCreateIndex, DDLRecord{Seq: seq, Index: &def}); err != nil {
		return def, err
	}
	m.publish(&version{graph: latest.graph, catalog: cat, seq: seq})

	m.logger.Info("index created",
		logging.Index(def.Name),
		logging.Label(def.Label),
		logging.Bool("unique", def.Unique),
		logging.Seq(seq))
	return def, nil
}

// DropIndex removes a named index
func (m *Manager) DropIndex(name string) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	latest := m.load()
	cat := latest.catalog.Copy()
	if err := cat.DropIndex(name); err != nil {
		return err
	}

	seq := latest.seq + 1
	if err := m.appendJournal(wal.OpDropIndex, DDLRecord{Seq: seq, Name: name}); err != nil {
		return err
	}
	m.publish(&version{graph: latest.graph, catalog: cat, seq: seq})
	m.logger.Info("index dropped", logging.Index(name), logging.Seq(seq))
	return nil
}

// DeclareProperty fixes the value type of label.property. Committed data
// that already conflicts with the declaration is refused.
func (m *Manager) DeclareProperty(label, property string, t storage.ValueType) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	latest := m.load()
	if existing, ok := latest.graph.Schema().Lookup(label, property); ok && existing == t {
		return nil
	}

	g := latest.graph.Copy()
	if err := g.DeclareProperty(label, property, t); err != nil {
		return err
	}

	seq := latest.seq + 1
	decl := storage.PropertyDecl{Label: label, Property: property, Type: t}
	if err := m.appendJournal(wal.OpDeclareProperty, DDLRecord{Seq: seq, Decl: &decl}); err != nil {
		return err
	}
	m.publish(&version{graph: g, catalog: latest.catalog, seq: seq})
	m.logger.Debug("property declared",
		logging.Label(label),
		logging.String("property", property),
		logging.String("type", t.String()))
	return nil
}
