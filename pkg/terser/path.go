package terser

import (
	"path"
	"strconv"
	"strings"

	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// Step is one group or segment element of a path.
type Step struct {
	// Name is an exact child name or a glob using * and ?.
	Name string
	// Rep is the 0-based repetition, 0 when not given.
	Rep int
	// Explicit is set when the repetition was written out, as in OBX(0).
	Explicit bool
	// Deep searches every level below the current group instead of the
	// direct children only. Written as a leading dot: /.OBX.
	Deep bool
}

// IsGlob reports whether the name contains wildcards.
func (s Step) IsGlob() bool {
	return strings.ContainsAny(s.Name, "*?")
}

// Matches reports whether a child name is selected by the step.
func (s Step) Matches(name string) bool {
	if !s.IsGlob() {
		return s.Name == name
	}
	ok, _ := path.Match(s.Name, name)
	return ok
}

// Path is a parsed terser expression such as
// /PATIENT_RESULT/.OBX(1)-5-2.
type Path struct {
	Raw      string
	Absolute bool
	Steps    []Step

	// Field is 1-based, 0 when the path addresses a segment.
	Field            int
	FieldRep         int
	FieldRepExplicit bool
	Component        int
	Subcomponent     int
}

// ParsePath parses a terser expression. Components and subcomponents default
// to 1 when a field is given.
func ParsePath(expr string) (*Path, error) {
	p := &Path{Raw: expr}
	rest := expr
	if strings.HasPrefix(rest, "/") {
		p.Absolute = true
		rest = rest[1:]
	}
	if rest == "" {
		return nil, syntaxErr(expr, "empty path")
	}

	elems := strings.Split(rest, "/")
	last := elems[len(elems)-1]
	parts := strings.Split(last, "-")
	if len(parts) > 4 {
		return nil, syntaxErr(expr, "too many subdivisions after %s", parts[0])
	}
	elems[len(elems)-1] = parts[0]

	for _, e := range elems {
		st, err := parseStep(expr, e)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, st)
	}

	if len(parts) == 1 {
		return p, nil
	}
	name, rep, explicit, err := splitRep(expr, parts[1])
	if err != nil {
		return nil, err
	}
	if p.Field, err = positive(expr, name); err != nil {
		return nil, err
	}
	p.FieldRep, p.FieldRepExplicit = rep, explicit
	p.Component, p.Subcomponent = 1, 1
	if len(parts) > 2 {
		if p.Component, err = positive(expr, parts[2]); err != nil {
			return nil, err
		}
	}
	if len(parts) > 3 {
		if p.Subcomponent, err = positive(expr, parts[3]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// String returns the expression the path was parsed from.
func (p *Path) String() string { return p.Raw }

func parseStep(expr, e string) (Step, error) {
	var st Step
	if strings.HasPrefix(e, ".") {
		st.Deep = true
		e = e[1:]
	}
	name, rep, explicit, err := splitRep(expr, e)
	if err != nil {
		return st, err
	}
	if name == "" {
		return st, syntaxErr(expr, "empty structure name")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') &&
			c != '_' && c != '*' && c != '?' {
			return st, syntaxErr(expr, "invalid character %q in %s", c, name)
		}
	}
	st.Name, st.Rep, st.Explicit = name, rep, explicit
	return st, nil
}

// splitRep splits "NAME(rep)" into its parts. explicit reports whether a
// repetition was present.
func splitRep(expr, s string) (name string, rep int, explicit bool, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if strings.IndexByte(s, ')') >= 0 {
			return "", 0, false, syntaxErr(expr, "unbalanced parenthesis in %q", s)
		}
		return s, 0, false, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", 0, false, syntaxErr(expr, "unbalanced parenthesis in %q", s)
	}
	rep, err = strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || rep < 0 {
		return "", 0, false, syntaxErr(expr, "invalid repetition in %q", s)
	}
	return s[:open], rep, true, nil
}

func positive(expr, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, syntaxErr(expr, "invalid position %q", s)
	}
	return n, nil
}

func syntaxErr(expr, format string, args ...any) error {
	err := hl7err.PathSyntax(format, args...)
	err.Msg = "path " + strconv.Quote(expr) + ": " + err.Msg
	return err
}
