package pattern

import (
	"errors"
	"testing"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsPattern() *GraphPattern {
	return &GraphPattern{
		Name: "fm-ts-info-request",
		Pattern: []string{
			"?ts_interval_uri a s4ener:TimeInterval .",
			"?ts_interval_uri s4ener:from ?ts_date_from .",
			"?ts_interval_uri s4ener:to ?ts_date_to .",
		},
		ResultPattern: []string{
			"?ts_uri s4ener:interval ?ts_interval_uri .",
			"?ts_uri s4ener:usage ?ts_usage .",
			"?ts_uri s4ener:created ?time_create .",
		},
		RequiredBindings: []string{"ts_date_from", "ts_date_to"},
	}
}

func TestExtractVars(t *testing.T) {
	vars := ExtractVars("?a ex:p ?b . ?b ex:q ?_c1 . ?a ex:r 'x?' . ?9bad ex:s ?a")
	assert.Equal(t, []string{"_c1", "a", "b"}, vars)
}

func TestExtractVars_SingleLetter(t *testing.T) {
	assert.Equal(t, []string{"x", "xy"}, ExtractVars("?x ex:p ?xy . ?xy ex:q ?x"))
	assert.Empty(t, ExtractVars("no variables here ? ?1"))
}

func TestVars_OrderIndependent(t *testing.T) {
	gp := tsPattern()
	reversed := &GraphPattern{Pattern: []string{gp.Pattern[2], gp.Pattern[1], gp.Pattern[0]}}

	assert.Equal(t, []string{"ts_date_from", "ts_date_to", "ts_interval_uri"}, gp.Vars())
	assert.Equal(t, gp.Vars(), reversed.Vars())
}

func TestVars_EmptyPattern(t *testing.T) {
	gp := &GraphPattern{}
	assert.Empty(t, gp.Vars())
	assert.NotNil(t, gp.Vars())
	assert.Empty(t, gp.ResultVars())
}

func TestResultPattern_AbsentVersusEmpty(t *testing.T) {
	absent := &GraphPattern{Pattern: []string{"?s ?p ?o"}}
	empty := &GraphPattern{Pattern: []string{"?s ?p ?o"}, ResultPattern: []string{}}

	_, ok := absent.ResultPatternText()
	assert.False(t, ok)
	assert.False(t, absent.HasResultPattern())

	text, ok := empty.ResultPatternText()
	assert.True(t, ok)
	assert.Equal(t, "", text)
	assert.True(t, empty.HasResultPattern())
	assert.Empty(t, empty.ResultVars())
}

func TestPatternText(t *testing.T) {
	gp := &GraphPattern{Pattern: []string{"?a ex:p ?b .", "?b ex:q ?c ."}}
	assert.Equal(t, "?a ex:p ?b .\n ?b ex:q ?c .", gp.PatternText())
}

func TestVerifyRequired(t *testing.T) {
	gp := tsPattern()

	require.NoError(t, gp.VerifyRequired(map[string]string{
		"ts_date_from": `"1970-01-01T00:00:00.001000+00:00"`,
		"ts_date_to":   `"2057-08-16T11:23:02+00:00"`,
	}))

	err := gp.VerifyRequired(map[string]string{"ts_interval_uri": "<http://x>"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrMissingBinding))
	assert.Contains(t, err.Error(), `"ts_date_from"`)

	err = gp.VerifyRequired(map[string]string{"ts_date_from": `"x"`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ts_date_to"`)

	assert.NoError(t, (&GraphPattern{}).VerifyRequired(nil))
}

func TestResultBindings(t *testing.T) {
	gp := tsPattern()
	full := map[string]string{
		"ts_uri":          "<http://fm.bluebird.com/ts/1>",
		"ts_interval_uri": "<http://ke.bluebird.com/interval/1>",
		"ts_usage":        "<s4ener:Consumption>",
		"time_create":     `"2025-12-18T18:23:24.578000+00:00"`,
		"extra":           `"dropped"`,
	}
	got, ok := gp.ResultBindings(full)
	require.True(t, ok)
	assert.Len(t, got, 4)
	assert.NotContains(t, got, "extra")

	delete(full, "ts_usage")
	_, ok = gp.ResultBindings(full)
	assert.False(t, ok)
}

func TestQualify(t *testing.T) {
	gp := tsPattern()
	q := gp.Qualify("react")
	assert.Equal(t, "react-fm-ts-info-request", q.Name)
	assert.Equal(t, "fm-ts-info-request", gp.Name)
	assert.Equal(t, gp.Vars(), q.Vars())
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("fm", "flexibility manager",
		map[string]string{"s4ener": "https://saref.etsi.org/saref4ener/", "ex": "http://example.org/"},
		map[string]*GraphPattern{
			"ts": {Pattern: []string{"?a ?b ?c"}, Prefixes: map[string]string{"ex": "http://override.org/"}},
		})

	gp, err := c.Lookup("ts")
	require.NoError(t, err)
	assert.Equal(t, "ts", gp.Name)

	_, err = c.Lookup("missing")
	require.Error(t, err)
	assert.True(t, kerrors.IsConfig(err))
	assert.True(t, errors.Is(err, kerrors.ErrUnknownPattern))

	merged := c.MergedPrefixes(gp)
	assert.Equal(t, "http://override.org/", merged["ex"])
	assert.Equal(t, "https://saref.etsi.org/saref4ener/", merged["s4ener"])

	require.NoError(t, c.Validate())
	c.ReasonerLevel = 5
	assert.Error(t, c.Validate())
}
