package terser

import (
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		expr string
		want Path
	}{
		{
			expr: "/PATIENT_RESULT(1)/.OBX(2)-5(1)-2-3",
			want: Path{
				Absolute:     true,
				Steps:        []Step{{Name: "PATIENT_RESULT", Rep: 1}, {Name: "OBX", Rep: 2, Deep: true}},
				Field:        5,
				FieldRep:     1,
				Component:    2,
				Subcomponent: 3,
			},
		},
		{
			expr: "PID-3",
			want: Path{
				Steps:        []Step{{Name: "PID"}},
				Field:        3,
				Component:    1,
				Subcomponent: 1,
			},
		},
		{
			expr: "/*/MSH",
			want: Path{
				Absolute: true,
				Steps:    []Step{{Name: "*"}, {Name: "MSH"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParsePath(tt.expr)
			if err != nil {
				t.Fatalf("ParsePath() error = %v", err)
			}
			tt.want.Raw = tt.expr
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParsePath() = %+v; want %+v", *got, tt.want)
			}
			if got.String() != tt.expr {
				t.Errorf("String() = %s", got.String())
			}
		})
	}
}

func TestStepMatches(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"PID", "PID", true},
		{"PID", "PID2", false},
		{"P*", "PATIENT", true},
		{"*", "MSH", true},
		{"OB?", "OBX", true},
		{"OB?", "OBSERVATION", false},
		{"p*", "PATIENT", false},
	}
	for _, tt := range tests {
		if got := (Step{Name: tt.pattern}).Matches(tt.name); got != tt.want {
			t.Errorf("Step{%s}.Matches(%s) = %v; want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}
