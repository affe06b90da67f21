package database

import (
	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/queryadapter"
	"github.com/ostigter/xantippe/internal/secindex"
	"github.com/ostigter/xantippe/internal/xerr"
)

// SecondaryKey is a single (name, value) term in a findDocuments query.
type SecondaryKey struct {
	Name  string
	Value catalog.TypedValue
}

func toIndexKeys(keys []SecondaryKey) []secindex.Key {
	out := make([]secindex.Key, len(keys))
	for i, k := range keys {
		out[i] = secindex.Key{Name: k.Name, Value: k.Value}
	}
	return out
}

// QueryEngine is the pluggable external evaluator a Database's
// executeQuery delegates to (§4.7, §1 "deliberately out of scope"). It
// consumes the database's own DocumentSource/CollectionSource/
// ModuleSource via the adapter this package implements.
type QueryEngine interface {
	Evaluate(queryText string, adapter queryadapter.Adapter) (queryadapter.DocumentStream, error)
}

// ExecuteQuery delegates queryText to engine, handing it this database as
// the query adapter. xantippe itself implements no query language; engine
// is supplied by the embedding application.
func (db *Database) ExecuteQuery(engine QueryEngine, queryText string) (queryadapter.DocumentStream, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, xerr.New(xerr.QueryFailed, "no query engine configured")
	}
	stream, err := engine.Evaluate(queryText, db)
	if err != nil {
		return nil, xerr.Wrap(xerr.QueryFailed, "query evaluation failed", err)
	}
	return stream, nil
}
