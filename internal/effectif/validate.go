package effectif

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldError is one coercion failure.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s=%q: %v", e.Field, e.Value, e.Err)
}

// Rejection describes a row that did not validate. Line is the 1-based line
// of the row in the source file (the header is line 1).
type Rejection struct {
	Line     int
	Errors   int
	Field    string
	Problems []FieldError
}

func (r *Rejection) String() string {
	return fmt.Sprintf("ligne %d: %d erreur(s), premier champ %q", r.Line, r.Errors, r.Field)
}

// Result is either a Record or a Rejection.
type Result struct {
	Record    Record
	Rejection *Rejection
}

// OK reports whether the row validated.
func (r Result) OK() bool { return r.Rejection == nil }

// Validate converts raw into a Record. Whitespace-only numerics become NULL,
// never zero. Blank text becomes NULL; other text is kept verbatim. prev
// stays text and no cross-field rule (such as Ntop <= Npop) applies.
func Validate(line int, raw Raw) Result {
	var v validator
	rec := Record{
		Annee:             v.int("annee", raw.Annee),
		PathoNiv1:         text(raw.PathoNiv1),
		PathoNiv2:         text(raw.PathoNiv2),
		PathoNiv3:         text(raw.PathoNiv3),
		Top:               text(raw.Top),
		ClaAge5:           text(raw.ClaAge5),
		Sexe:              v.int("sexe", raw.Sexe),
		Region:            text(raw.Region),
		Dept:              text(raw.Dept),
		Ntop:              v.int("Ntop", raw.Ntop),
		Npop:              v.int("Npop", raw.Npop),
		Prev:              text(raw.Prev),
		NiveauPrioritaire: text(raw.NiveauPrioritaire),
		LibelleClasseAge:  text(raw.LibelleClasseAge),
		LibelleSexe:       text(raw.LibelleSexe),
		Tri:               v.float("tri", raw.Tri),
	}
	if len(v.problems) > 0 {
		return Result{Rejection: &Rejection{
			Line:     line,
			Errors:   len(v.problems),
			Field:    v.problems[0].Field,
			Problems: v.problems,
		}}
	}
	return Result{Record: rec}
}

type validator struct{ problems []FieldError }

func (v *validator) int(field, s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	// Integral floats such as "2023.0" are accepted.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) &&
		f >= math.MinInt64 && f < math.MaxInt64 {
		n := int64(f)
		return &n
	}
	v.problems = append(v.problems, FieldError{Field: field, Value: s, Err: fmt.Errorf("not an integer")})
	return nil
}

func (v *validator) float(field, s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		// French decimal comma.
		f, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		v.problems = append(v.problems, FieldError{Field: field, Value: s, Err: fmt.Errorf("not a number")})
		return nil
	}
	return &f
}

func text(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
