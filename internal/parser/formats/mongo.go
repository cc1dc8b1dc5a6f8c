package formats

import (
	"context"
	"fmt"

	"dataresource/internal/dbclient"
	"dataresource/internal/parser"
)

// ── MongoDB ─────────────────────────────────────────────────
// Reads one collection from mongodb://host/db, the first by name when the
// dialect names none. Columns come from the first page of documents: _id
// first, then alphabetical.

type mongoParser struct{}

func init() { parser.Register(&mongoParser{}) }

func (p *mongoParser) Spec() parser.Spec {
	return parser.Spec{Format: "mongo", Label: "MongoDB Collection", Kind: parser.KindLocation}
}

func (p *mongoParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	ctl := in.Dialect.MongoOptions()
	conn, err := dbclient.NewConnector(in.Path)
	if err != nil {
		return nil, err
	}
	if ctl.Collection == "" {
		if ctl.Collection, err = firstTable(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("mongo: %w", err)
		}
		if in.Dialect != nil {
			in.Dialect.Mongo = &ctl
		}
	}

	q := dbclient.MongoQuery{Collection: ctl.Collection, Filter: ctl.Filter}
	for _, k := range ctl.Sort {
		q.Sort = append(q.Sort, dbclient.SortKey{Field: k.Field, Direction: k.Direction})
	}
	query, err := q.Encode()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return openPaged(ctx, conn, query)
}
