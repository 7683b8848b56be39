package rdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseN3(t *testing.T) {
	tests := []struct {
		in   string
		want Term
	}{
		{`<http://ke.bluebird.com/interval/1>`, URIRef("http://ke.bluebird.com/interval/1")},
		{`<s4ener:Consumption>`, URIRef("s4ener:Consumption")},
		{`"1"`, Literal{Lexical: "1"}},
		{`'single'`, Literal{Lexical: "single"}},
		{`"""multi
line"""`, Literal{Lexical: "multi\nline"}},
		{`"hallo"@de`, Literal{Lexical: "hallo", Lang: "de"}},
		{`"2025-12-18T18:23:24.578000+00:00"^^<http://www.w3.org/2001/XMLSchema#dateTime>`,
			Literal{Lexical: "2025-12-18T18:23:24.578000+00:00", Datatype: XSDDateTime}},
		{`"5"^^xsd:integer`, Literal{Lexical: "5", Datatype: XSDInteger}},
		{`"say \"hi\""`, Literal{Lexical: `say "hi"`}},
		{`42`, Literal{Lexical: "42", Datatype: XSDInteger}},
		{`-1.5`, Literal{Lexical: "-1.5", Datatype: XSDDecimal}},
		{`1e3`, Literal{Lexical: "1e3", Datatype: XSDDouble}},
		{`true`, Literal{Lexical: "true", Datatype: XSDBoolean}},
		{`_:b0`, BlankNode("b0")},
		{`rdf:nil`, Nil},
		{`rdfs:label`, URIRef(RDFSNamespace + "label")},
		{`  <http://padded>  `, URIRef("http://padded")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseN3(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseN3_Errors(t *testing.T) {
	for _, in := range []string{"", "<open", `"open`, `"x"junk`, `"x"@`, "bare", "ex:thing", `"x\`} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseN3(in)
			assert.Error(t, err)
		})
	}
}

func TestParseN3WithPrefixes(t *testing.T) {
	got, err := ParseN3WithPrefixes("ex:thing", map[string]string{"ex": "http://example.org/"})
	require.NoError(t, err)
	assert.Equal(t, URIRef("http://example.org/thing"), got)
}

func TestN3_RoundTrip(t *testing.T) {
	terms := []Term{
		URIRef("http://fm.bluebird.com/ts/1/2765186582000/60/0"),
		Literal{Lexical: "plain"},
		Literal{Lexical: "tab\tand \"quote\" and \\", Lang: "en"},
		Literal{Lexical: "3.25", Datatype: XSDDouble},
		BlankNode("n1"),
		Nil,
	}
	for _, term := range terms {
		got, err := ParseN3(term.N3())
		require.NoError(t, err, term.N3())
		assert.Equal(t, term, got)
	}
}

func TestLiteralN3(t *testing.T) {
	assert.Equal(t, `"1"`, Literal{Lexical: "1"}.N3())
	assert.Equal(t, `"1"`, Literal{Lexical: "1", Datatype: XSDString}.N3())
	assert.Equal(t, `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`, NewLiteral(1).N3())
}

func TestNewLiteral(t *testing.T) {
	ts := time.Date(2025, 12, 18, 18, 23, 24, 0, time.UTC)
	assert.Equal(t, Literal{Lexical: "x"}, NewLiteral("x"))
	assert.Equal(t, Literal{Lexical: "7", Datatype: XSDInteger}, NewLiteral(int64(7)))
	assert.Equal(t, Literal{Lexical: "0.5", Datatype: XSDDouble}, NewLiteral(0.5))
	assert.Equal(t, Literal{Lexical: "true", Datatype: XSDBoolean}, NewLiteral(true))
	assert.Equal(t, Literal{Lexical: "2025-12-18T18:23:24Z", Datatype: XSDDateTime}, NewLiteral(ts))
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(Nil))
	assert.True(t, IsNil(URIRef("rdf:nil")))
	assert.False(t, IsNil(URIRef("http://example.org/nil")))
	assert.False(t, IsNil(Literal{Lexical: NilURI}))
	assert.False(t, IsNil(nil))
}
