package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/relation"
)

// ErrNotStored is returned when the database holds no relation by the
// requested name.
var ErrNotStored = errors.New("relation not stored")

// BadgerStore keeps relations in a badger database. Each tuple is one
// key with an empty value; the relation's column list is stored beside
// its tuples and checked on load.
type BadgerStore struct {
	db *badger.DB
}

// storedSchema is the YAML value under a schema key.
type storedSchema struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// StoredRelation describes a relation found in the database.
type StoredRelation struct {
	Name    string
	Columns []datalog.Column
	Tuples  int
}

// NewBadgerStore opens or creates the database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable BadgerDB logs

	// Keys carry all the data, so values are always inline
	opts.DetectConflicts = false
	opts.NumCompactors = 4
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Emit replaces the stored contents of rel with its current tuples.
func (s *BadgerStore) Emit(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	name := rel.Name()
	schema := rel.Schema()
	kinds := schema.Kinds()

	if err := s.db.DropPrefix(tuplePrefix(name)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", name, err)
	}

	doc := storedSchema{Name: name}
	for _, c := range schema.Columns {
		doc.Columns = append(doc.Columns, c.String())
	}
	value, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode schema of %s: %w", name, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	if err := wb.Set(schemaKey(name), value); err != nil {
		return fmt.Errorf("failed to write schema of %s: %w", name, err)
	}

	prefix := tuplePrefix(name)
	n := 0
	rel.Scan(nil).Each(func(t datalog.Tuple) bool {
		n++
		if n%4096 == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		var key []byte
		key, err = appendTuple(concatBytes(prefix), t, kinds, symbols)
		if err != nil {
			return false
		}
		err = wb.Set(key, []byte{})
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Load inserts the stored tuples of rel's name into rel. The stored
// columns must match rel's schema in number and kind.
func (s *BadgerStore) Load(ctx context.Context, rel *relation.Relation, symbols *datalog.SymbolTable) error {
	name := rel.Name()
	kinds := rel.Schema().Kinds()
	tuple := make(datalog.Tuple, len(kinds))
	hints := relation.NewHints()
	defer rel.Release(hints)

	return s.db.View(func(txn *badger.Txn) error {
		stored, err := readSchema(txn, name)
		if err != nil {
			return err
		}
		if err := checkColumns(name, stored, rel.Schema().Columns); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY - no values!
		opts.Prefix = tuplePrefix(name)

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if n%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			key := it.Item().Key()
			if err := decodeTuple(key[len(opts.Prefix):], tuple, kinds, symbols); err != nil {
				return fmt.Errorf("relation %s: %w", name, err)
			}
			rel.Insert(tuple, hints)
		}
		return nil
	})
}

// Schema returns the stored schema of a relation, with the identity
// index order.
func (s *BadgerStore) Schema(name string) (relation.Schema, error) {
	var schema relation.Schema
	err := s.db.View(func(txn *badger.Txn) error {
		cols, err := readSchema(txn, name)
		if err != nil {
			return err
		}
		schema = relation.Schema{Name: name, Columns: cols}
		return nil
	})
	return schema, err
}

// Count returns the number of stored tuples of a relation.
func (s *BadgerStore) Count(name string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := readSchema(txn, name); err != nil {
			return err
		}
		count = countPrefix(txn, tuplePrefix(name))
		return nil
	})
	return count, err
}

// Relations lists the stored relations by name.
func (s *BadgerStore) Relations() ([]StoredRelation, error) {
	var out []StoredRelation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{SchemaPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var doc storedSchema
			err := it.Item().Value(func(val []byte) error {
				return yaml.Unmarshal(val, &doc)
			})
			if err != nil {
				return fmt.Errorf("failed to decode schema: %w", err)
			}
			cols, err := parseColumns(doc)
			if err != nil {
				return err
			}
			out = append(out, StoredRelation{
				Name:    doc.Name,
				Columns: cols,
				Tuples:  countPrefix(txn, tuplePrefix(doc.Name)),
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// Drop deletes a relation and its tuples.
func (s *BadgerStore) Drop(name string) error {
	if err := s.db.DropPrefix(tuplePrefix(name)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(schemaKey(name))
	})
}

func readSchema(txn *badger.Txn, name string) ([]datalog.Column, error) {
	item, err := txn.Get(schemaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotStored, name)
	}
	if err != nil {
		return nil, err
	}
	var doc storedSchema
	err = item.Value(func(val []byte) error {
		return yaml.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema of %s: %w", name, err)
	}
	if doc.Name != name {
		return nil, fmt.Errorf("%w: key of %s holds %s", relation.ErrSchemaMismatch, name, doc.Name)
	}
	return parseColumns(doc)
}

func parseColumns(doc storedSchema) ([]datalog.Column, error) {
	cols := make([]datalog.Column, 0, len(doc.Columns))
	for _, c := range doc.Columns {
		col, err := datalog.ParseColumn(c)
		if err != nil {
			return nil, fmt.Errorf("stored schema of %s: %w", doc.Name, err)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func checkColumns(name string, stored, want []datalog.Column) error {
	if len(stored) != len(want) {
		return fmt.Errorf("%w: %s stored with %d columns, program declares %d",
			relation.ErrSchemaMismatch, name, len(stored), len(want))
	}
	for i := range want {
		if stored[i].Kind != want[i].Kind {
			return fmt.Errorf("%w: %s column %d stored as %s, program declares %s",
				relation.ErrSchemaMismatch, name, i, stored[i], want[i])
		}
	}
	return nil
}

// countPrefix counts keys without fetching values
func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count
}
