package delimiter

import "testing"

func TestFromMSH(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Set
		wantErr bool
	}{
		{
			name: "default delimiters",
			line: `MSH|^~\&|A|B`,
			want: Default(),
		},
		{
			name: "custom delimiters",
			line: `MSH#$*!@#A#B`,
			want: Set{Field: '#', Component: '$', Repetition: '*', Escape: '!', Subcomponent: '@'},
		},
		{
			name: "short encoding characters fall back to defaults",
			line: `MSH|^~|A`,
			want: Default(),
		},
		{
			name:    "not a header segment",
			line:    `PID|1`,
			wantErr: true,
		},
		{
			name:    "duplicate delimiters",
			line:    `MSH|^^\&|A`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMSH(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FromMSH(%q) expected error", tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromMSH(%q) failed: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("FromMSH(%q) = %+v; want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestEncodingCharacters(t *testing.T) {
	if got := Default().EncodingCharacters(); got != `^~\&` {
		t.Errorf("EncodingCharacters() = %q; want %q", got, `^~\&`)
	}
	if got := Default().String(); got != `|^~\&` {
		t.Errorf("String() = %q", got)
	}
}

func TestEscape(t *testing.T) {
	s := Default()
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a|b", `a\F\b`},
		{"a^b", `a\S\b`},
		{"a&b", `a\T\b`},
		{"a~b", `a\R\b`},
		{`a\b`, `a\E\b`},
		{"line1\rline2", `line1\X0D\line2`},
		{`keep \.br\ formatting`, `keep \.br\ formatting`},
		{`\H\bold\N\`, `\H\bold\N\`},
		{"raw \xff byte", `raw \XFF\ byte`},
		{"bell\x07", `bell\X07\`},
		{"tab\tkept", "tab\tkept"},
		{"café", "café"},
	}

	for _, tt := range tests {
		if got := s.EscapeText(tt.in); got != tt.want {
			t.Errorf("EscapeText(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnescape(t *testing.T) {
	s := Default()
	tests := []struct {
		in   string
		want string
	}{
		{`a\F\b\S\c\T\d\R\e\E\f`, `a|b^c&d~e\f`},
		{`\X41\\X4243\`, "ABC"},
		{`\.br\`, `\.br\`},
		{`unterminated \F`, `unterminated \F`},
		{`\Q\`, `\Q\`},
	}

	for _, tt := range tests {
		if got := s.UnescapeText(tt.in); got != tt.want {
			t.Errorf("UnescapeText(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeSymmetry(t *testing.T) {
	sets := []Set{
		Default(),
		{Field: '#', Component: '$', Repetition: '*', Escape: '!', Subcomponent: '@'},
	}
	inputs := []string{
		"",
		`all|four^reserved~delims&and\escape`,
		`\\||^^~~&&`,
		`\X41\ literal hex`,
		`\H\ kept`,
		"cr\rlf\n",
		"#$*!@ custom delimiters as text",
		`trailing escape \`,
	}

	for _, s := range sets {
		for _, in := range inputs {
			if got := s.UnescapeText(s.EscapeText(in)); got != in {
				t.Errorf("set %s: UnescapeText(EscapeText(%q)) = %q", s, in, got)
			}
		}
	}
}

func TestHexEscapeRoundTrip(t *testing.T) {
	s := Default()
	for _, in := range []string{`\XFF\`, `a\X00\b`, `\X0D\\X0A\`, `\X7F\`} {
		if got := s.EscapeText(s.UnescapeText(in)); got != in {
			t.Errorf("EscapeText(UnescapeText(%q)) = %q", in, got)
		}
	}
}

func BenchmarkEscape(b *testing.B) {
	s := Default()
	text := `Smith|John^Q~Jr&\III`
	for i := 0; i < b.N; i++ {
		_ = s.UnescapeText(s.EscapeText(text))
	}
}
