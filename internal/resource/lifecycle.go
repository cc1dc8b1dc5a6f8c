package resource

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
)

// ── Lifecycle ──────────────────────────────────────────────

// Open allocates the loader, decompressor and parser for the current
// metadata. A previous session is closed first. Open does not modify the
// resource's metadata; Infer does that.
func (r *Resource) Open(ctx context.Context) error {
	if r.session != nil {
		r.endSession()
	}
	s, err := r.startSession(ctx)
	if err != nil {
		return err
	}
	r.session = s
	return nil
}

// Close releases the session. Closing a closed resource is a no-op.
func (r *Resource) Close() error {
	if r.session == nil {
		return nil
	}
	return r.endSession()
}

// Closed reports whether the resource has no active session.
func (r *Resource) Closed() bool { return r.session == nil }

func (r *Resource) startSession(ctx context.Context) (*session, error) {
	s, err := r.openSession(ctx)
	if err != nil {
		log.Debug().Err(err).Str("path", r.displayPath()).Msg("resource: open failed")
		return nil, report("open", err)
	}
	currentObserver().Opened(s.format, r.scheme)
	log.Debug().
		Str("name", r.name).
		Str("scheme", r.scheme).
		Str("format", s.format).
		Str("encoding", s.encoding).
		Msg("resource: opened")
	return s, nil
}

func (r *Resource) endSession() error {
	s := r.session
	r.session = nil
	return r.finish(s)
}

func (r *Resource) finish(s *session) error {
	if s.closed {
		return nil
	}
	err := s.close()
	currentObserver().Closed(s.format, s.bytesRead(), s.rowsRead)
	log.Debug().
		Str("name", r.name).
		Int64("bytes", s.bytesRead()).
		Int("rows", s.rowsRead).
		Msg("resource: closed")
	return err
}

// oneShot runs fn on the open session, or wraps it in open → fn → close when
// the resource is closed.
func (r *Resource) oneShot(ctx context.Context, op string, fn func(*session) error) error {
	if r.session != nil {
		return report(op, fn(r.session))
	}
	s, err := r.startSession(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if cerr := r.finish(s); err == nil && cerr != nil {
		err = newError(KindRead, op, cerr, "close")
	}
	return report(op, err)
}

// active returns the open session for the lazy accessors.
func (r *Resource) active(op string) (*session, error) {
	if r.session == nil || r.session.closed {
		return nil, report(op, newError(KindRead, op, ErrClosed, ""))
	}
	return r.session, nil
}

// ── Materialized reads ─────────────────────────────────────

// ReadBytes returns the remaining decompressed bytes.
func (r *Resource) ReadBytes(ctx context.Context) ([]byte, error) {
	var out []byte
	err := r.oneShot(ctx, "read bytes", func(s *session) error {
		br, err := s.byteReader("read bytes")
		if err != nil {
			return err
		}
		if out, err = io.ReadAll(br); err != nil {
			return newError(KindRead, "read bytes", err, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadText returns the remaining content decoded with the resource encoding.
func (r *Resource) ReadText(ctx context.Context) (string, error) {
	var out []byte
	err := r.oneShot(ctx, "read text", func(s *session) error {
		tr, err := s.textReader("read text")
		if err != nil {
			return err
		}
		if out, err = io.ReadAll(tr); err != nil {
			return newError(KindRead, "read text", err, "decode %s", s.encoding)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadCells returns the remaining raw cell rows, header rows included.
func (r *Resource) ReadCells(ctx context.Context) ([][]any, error) {
	var out [][]any
	err := r.oneShot(ctx, "read cells", func(s *session) error {
		for {
			row, err := s.nextRaw()
			if isEOF(err) {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, row.cells)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRows returns the remaining typed rows. Once a session is exhausted it
// returns no rows until the resource is reopened.
func (r *Resource) ReadRows(ctx context.Context) ([]*Row, error) {
	var out []*Row
	err := r.oneShot(ctx, "read rows", func(s *session) error {
		if err := s.initTable(r.schema); err != nil {
			return err
		}
		for {
			row, err := s.nextRow()
			if isEOF(err) {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, row)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Lazy streams ───────────────────────────────────────────

func (r *Resource) ByteStream() (io.Reader, error) {
	s, err := r.active("byte stream")
	if err != nil {
		return nil, err
	}
	return s.byteReader("byte stream")
}

func (r *Resource) TextStream() (io.Reader, error) {
	s, err := r.active("text stream")
	if err != nil {
		return nil, err
	}
	return s.textReader("text stream")
}

func (r *Resource) CellStream() (*CellStream, error) {
	s, err := r.active("cell stream")
	if err != nil {
		return nil, err
	}
	if err := s.ensureCursor(); err != nil {
		return nil, report("cell stream", err)
	}
	return &CellStream{s: s}, nil
}

func (r *Resource) RowStream() (*RowStream, error) {
	s, err := r.active("row stream")
	if err != nil {
		return nil, err
	}
	if err := s.initTable(r.schema); err != nil {
		return nil, report("row stream", err)
	}
	return &RowStream{s: s}, nil
}

// Header returns the header labels once rows have been requested on the
// open session, otherwise nil.
func (r *Resource) Header() []string {
	if r.session == nil || r.session.table == nil {
		return nil
	}
	return append([]string(nil), r.session.table.labels...)
}
