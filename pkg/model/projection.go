package model

// Text returns the value of the first primitive inside t, or "".
func Text(t Type) string {
	if p := FirstPrimitive(t); p != nil {
		return p.String()
	}
	return ""
}

// ComponentText returns the text of 1-based component comp of field n, first
// repetition, or "" when absent. It never creates structure.
func (s *Segment) ComponentText(n, comp int) string {
	t, ok := s.FieldIfExists(n, 0)
	if !ok {
		return ""
	}
	if comp <= 1 {
		return Text(t)
	}
	if c, ok := Unwrap(t).(*Composite); ok {
		if comp <= c.Len() {
			return Text(c.comps[comp-1])
		}
		if ev, ok := c.extra.Component(comp - 1 - c.Len()); ok {
			return Text(ev)
		}
		return ""
	}
	if ev, ok := t.Extra().Component(comp - 2); ok {
		return Text(ev)
	}
	return ""
}

// Projection returns a JSON-ready view of the message used by expression
// rules:
//
//	{"structure": "ADT_A01", "version": "2.5", "messageType": "ADT",
//	 "triggerEvent": "A01", "controlId": "1",
//	 "segments": [{"name": "PID", "rep": 0, "path": "/PID(0)",
//	   "fields": [{"position": 3, "value": "123", "repetitions": 1,
//	     "components": ["123", "", "", "HOSP"]}]}]}
//
// Empty fields are left out.
func (m *Message) Projection() map[string]any {
	out := map[string]any{
		"structure": m.Structure(),
		"version":   m.version,
	}
	if msh, ok := m.Header(); ok {
		out["messageType"] = msh.ComponentText(9, 1)
		out["triggerEvent"] = msh.ComponentText(9, 2)
		out["controlId"] = msh.ComponentText(10, 1)
	}

	segments := []any{}
	m.Walk(func(s *Segment) error {
		segments = append(segments, s.projection())
		return nil
	})
	out["segments"] = segments
	return out
}

func (s *Segment) projection() map[string]any {
	fields := []any{}
	for n := 1; n <= len(s.fields); n++ {
		reps := s.fields[n-1]
		if len(reps) == 0 || allEmpty(reps) {
			continue
		}
		f := map[string]any{
			"position":    n,
			"value":       Text(reps[0]),
			"repetitions": len(reps),
		}
		if comps := componentTexts(reps[0]); len(comps) > 1 {
			f["components"] = comps
		}
		fields = append(fields, f)
	}
	return map[string]any{
		"name":   s.name,
		"rep":    s.rep,
		"path":   s.Path(),
		"fields": fields,
	}
}

func componentTexts(t Type) []any {
	var out []any
	switch n := Unwrap(t).(type) {
	case *Composite:
		for _, c := range n.comps {
			out = append(out, Text(c))
		}
	case *Primitive:
		out = append(out, n.String())
	}
	for _, ev := range t.Extra().comps {
		out = append(out, Text(ev))
	}
	return out
}

func allEmpty(reps []Type) bool {
	for _, t := range reps {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}
