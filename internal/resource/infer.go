package resource

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/rs/zerolog/log"
)

type InferOptions struct {
	// Stats also computes hashes, byte and row counts over a full read.
	Stats bool
}

// Infer reads the resource once and fills every unset property: scheme,
// format, mediatype, encoding, compression, innerpath, dialect and schema.
// The pass runs on a copy, so a failure leaves the metadata unchanged and an
// open session is not disturbed.
func (r *Resource) Infer(ctx context.Context, opts InferOptions) error {
	c := r.clone()
	var stats *Stats
	var inferred *session
	err := c.oneShot(ctx, "infer", func(s *session) error {
		inferred = s
		if s.parser != nil {
			if err := s.initTable(c.schema); err != nil {
				return err
			}
			if opts.Stats {
				for {
					_, err := s.nextRow()
					if isEOF(err) {
						break
					}
					if err != nil {
						return err
					}
				}
			}
		}
		if !opts.Stats {
			return nil
		}
		if s.bytes != nil {
			if _, err := io.Copy(io.Discard, s.bytes); err != nil {
				return newError(KindRead, "infer", err, "")
			}
		}
		stats = &Stats{Rows: s.rowsRead}
		if s.table != nil {
			stats.Fields = len(s.table.names)
		}
		if s.hasher != nil {
			stats.Bytes = s.hasher.n
			stats.MD5 = hex.EncodeToString(s.hasher.md5.Sum(nil))
			stats.SHA256 = hex.EncodeToString(s.hasher.sha.Sum(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s := inferred
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&r.scheme, c.scheme)
	fill(&r.format, s.format)
	fill(&r.compression, c.compression)
	fill(&r.innerpath, s.innerpath)
	fill(&r.encoding, s.encoding)
	if r.mediatype == "" {
		r.mediatype = c.mediatype
		if r.mediatype == "" && s.parser != nil {
			r.mediatype = s.parser.Spec().MediaType
		}
	}
	switch {
	case r.dialect == nil && s.dialect != nil && !s.dialect.IsZero():
		r.dialect = s.dialect.Clone()
	case r.dialect != nil && s.dialect != nil:
		// keep the table or collection a location parser defaulted to
		if r.dialect.SQL == nil && s.dialect.SQL != nil {
			r.dialect.SQL = s.dialect.Clone().SQL
		}
		if r.dialect.Mongo == nil && s.dialect.Mongo != nil {
			r.dialect.Mongo = s.dialect.Clone().Mongo
		}
	}
	if r.schema == nil && s.table != nil {
		r.schema = s.table.schema.Clone()
	}
	if stats != nil {
		r.stats = stats
	}

	log.Debug().
		Str("name", r.name).
		Str("format", r.format).
		Str("encoding", r.encoding).
		Bool("stats", opts.Stats).
		Msg("resource: inferred")
	return nil
}
