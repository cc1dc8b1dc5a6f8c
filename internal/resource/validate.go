package resource

import (
	"context"
	"strings"
)

// MaxReportErrors caps the errors collected by Validate.
const MaxReportErrors = 1000

// Report error types.
const (
	ErrorCast           = "cast-error"
	ErrorConstraint     = "constraint-error"
	ErrorMissingCell    = "missing-cell"
	ErrorExtraCell      = "extra-cell"
	ErrorBlankRow       = "blank-row"
	ErrorBlankLabel     = "blank-label"
	ErrorDuplicateLabel = "duplicate-label"
	ErrorIncorrectLabel = "incorrect-label"
	ErrorSource         = "source-error"
)

type ReportError struct {
	Type        string `json:"type"`
	RowNumber   int    `json:"rowNumber,omitempty"`
	FieldName   string `json:"fieldName,omitempty"`
	FieldNumber int    `json:"fieldNumber,omitempty"`
	Cell        any    `json:"cell,omitempty"`
	Note        string `json:"note"`
}

// Report is the outcome of validating one resource.
type Report struct {
	Valid     bool          `json:"valid"`
	Name      string        `json:"name"`
	Path      string        `json:"path,omitempty"`
	Rows      int           `json:"rows"`
	Fields    int           `json:"fields"`
	Errors    []ReportError `json:"errors"`
	Truncated bool          `json:"truncated,omitempty"`
}

func (rep *Report) add(e ReportError) {
	if len(rep.Errors) >= MaxReportErrors {
		rep.Truncated = true
		return
	}
	rep.Errors = append(rep.Errors, e)
}

// Validate reads every row and reports label problems, cast and constraint
// failures, missing and extra cells and blank rows. Failures to open or
// decode the source are returned as errors, not report entries.
func (r *Resource) Validate(ctx context.Context) (*Report, error) {
	rep := &Report{Name: r.name, Path: r.path, Errors: []ReportError{}}
	err := r.oneShot(ctx, "validate", func(s *session) error {
		if err := s.initTable(r.schema); err != nil {
			return err
		}
		rep.Fields = len(s.table.names)
		checkLabels(rep, s.table, r.schema != nil && len(r.schema.Fields) > 0)

		for {
			if err := ctx.Err(); err != nil {
				return newError(KindRead, "validate", err, "")
			}
			row, err := s.nextRow()
			if isEOF(err) {
				return nil
			}
			if err != nil {
				return err
			}
			rep.Rows++
			checkRow(rep, s, row)
		}
	})
	if err != nil {
		return nil, err
	}
	rep.Valid = len(rep.Errors) == 0 && !rep.Truncated
	return rep, nil
}

func checkLabels(rep *Report, t *table, own bool) {
	seen := map[string]bool{}
	for i, label := range t.labels {
		n := i + 1
		switch {
		case strings.TrimSpace(label) == "":
			rep.add(ReportError{Type: ErrorBlankLabel, FieldNumber: n, Note: "label is blank"})
		case seen[label]:
			rep.add(ReportError{Type: ErrorDuplicateLabel, FieldNumber: n, FieldName: label, Note: "label is duplicated"})
		}
		seen[label] = true
		if own && i < len(t.names) && label != "" && label != t.names[i] {
			rep.add(ReportError{
				Type: ErrorIncorrectLabel, FieldNumber: n, FieldName: t.names[i],
				Cell: label, Note: "label does not match field name",
			})
		}
	}
}

func checkRow(rep *Report, s *session, row *Row) {
	sc := s.table.schema
	blank := true
	for _, c := range row.Cells {
		if !sc.IsMissing(c) {
			blank = false
			break
		}
	}
	if blank {
		rep.add(ReportError{Type: ErrorBlankRow, RowNumber: row.Number, Note: "row is blank"})
		return
	}

	width := len(row.Cells)
	for i := width; i < len(sc.Fields); i++ {
		rep.add(ReportError{
			Type: ErrorMissingCell, RowNumber: row.Number,
			FieldName: sc.Fields[i].Name, FieldNumber: i + 1, Note: "cell is missing",
		})
	}
	for i := len(sc.Fields); i < width; i++ {
		rep.add(ReportError{
			Type: ErrorExtraCell, RowNumber: row.Number,
			FieldNumber: i + 1, Cell: row.Cells[i], Note: "cell has no field",
		})
	}
	for _, ce := range row.Errors {
		if ce.FieldNumber > width {
			continue
		}
		typ := ErrorCast
		if strings.HasPrefix(ce.Note, "constraint") {
			typ = ErrorConstraint
		}
		rep.add(ReportError{
			Type: typ, RowNumber: row.Number, FieldName: ce.FieldName,
			FieldNumber: ce.FieldNumber, Cell: ce.Cell, Note: ce.Note,
		})
	}
}
