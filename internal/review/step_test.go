package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/consensus"
)

func newInterp() *Interpreter {
	return NewInterpreter(consensus.New(consensus.DefaultOptions()))
}

func testCluster(rep string, flags []cluster.Flag, taxa ...string) cluster.Cluster {
	c := cluster.Cluster{Label: "MQR_100_7", Representative: rep, Flags: flags}
	for i, tax := range taxa {
		acc := "AB00" + string(rune('1'+i))
		c.Members = append(c.Members, cluster.Member{Raw: ">" + acc + " " + tax, Accession: acc, Taxonomy: tax})
	}
	return c
}

func bacillus() cluster.Cluster {
	return testCluster("Bacteria;Firmicutes;Bacillus;Bacillus", []cluster.Flag{cluster.FlagOutlier},
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis str. 168",
		"Bacteria;Firmicutes;Bacillus;Bacillus cereus",
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis",
	)
}

// run feeds lines through the interpreter and returns the final values and
// the effect of the last line.
func run(t *testing.T, st State, c cluster.Cluster, lines ...string) (State, cluster.Cluster, Effect) {
	t.Helper()
	in := newInterp()
	var eff Effect
	for _, l := range lines {
		st, c, eff = in.Step(st, c, l)
	}
	return st, c, eff
}

func TestStep_InvalidCommandsChangeNothing(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"frobnicate",
		"keep",
		"keep 0",
		"keep 4",
		"keep x",
		"keep 1 c-4",
		"keep 1 s-9",
		"keep 1 x-1",
		"keep 1 c-",
		"remove",
		"remove 3-1",
		"remove a-b",
		"remove 1-9",
		"remove 1-3",
		"manual",
		"manual   ",
		"accept flag",
		"exclude now",
	}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			st := NewState()
			c := bacillus()
			gotSt, gotC, eff := newInterp().Step(st, c, input)
			assert.Equal(t, EffectInvalid, eff.Kind)
			assert.NotEmpty(t, eff.Message)
			assert.Equal(t, st, gotSt)
			assert.Equal(t, c, gotC)
		})
	}
}

func TestStep_ConfirmationProtocol(t *testing.T) {
	c := bacillus()
	st, _, eff := run(t, NewState(), c, "ACCEPT")
	require.Equal(t, EffectConfirm, eff.Kind)
	require.NotNil(t, st.Pending)
	question := eff.Message

	// Anything but y/n re-prompts with the same question.
	st2, _, eff := run(t, st, c, "maybe")
	assert.Equal(t, EffectConfirm, eff.Kind)
	assert.Equal(t, question, eff.Message)
	assert.Equal(t, st, st2)

	st3, c3, eff := run(t, st, c, "n")
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Nil(t, st3.Pending)
	assert.Equal(t, c, c3)

	_, _, eff = run(t, st, c, "Yes")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.Equal(t, Decision{Label: c.Label, Taxonomy: c.Representative}, eff.Decision)
}

func TestStep_AcceptAllSetsSkipReview(t *testing.T) {
	st, _, eff := run(t, NewState(), bacillus(), "accept all", "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.True(t, st.SkipReview)
	assert.True(t, AutoDecision(st, testCluster("X", []cluster.Flag{cluster.FlagNoMatch}, "A;B")))
}

func TestStep_AcceptFlag(t *testing.T) {
	// All of the cluster's flags now accepted: it is committed.
	st, _, eff := run(t, NewState(), bacillus(), "accept flag outlier", "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.Equal(t, []cluster.Flag{cluster.FlagOutlier}, st.AcceptedFlags)

	// Short form, with another flag still unaccepted: cluster stays.
	c := testCluster("A;B", []cluster.Flag{cluster.FlagOutlier, cluster.FlagChlrMito}, "A;B")
	st, _, eff = run(t, NewState(), c, "accept Outlier", "y")
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Contains(t, eff.Message, "Outlier")
	assert.True(t, st.FlagAccepted(cluster.FlagOutlier))
	assert.False(t, AutoDecision(st, c))

	// Operator flag text is kept as typed when it is not a known flag.
	st, _, _ = run(t, NewState(), c, "accept flag Odd One", "y")
	assert.Equal(t, []cluster.Flag{"Odd One"}, st.AcceptedFlags)
	assert.True(t, st.FlagAccepted("odd one"))
}

func TestStep_Keep(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"keep 2", "Bacteria;Firmicutes;Bacillus;Bacillus cereus"},
		{"keep 2 c-1", "Bacteria;Firmicutes;Bacillus"},
		{"keep 1 s-2", "Bacteria;Firmicutes;Bacillus;Bacillus subtilis"},
		{"KEEP 1 S-3", "Bacteria;Firmicutes;Bacillus;Bacillus"},
		{"keep 3 c-0", "Bacteria;Firmicutes;Bacillus;Bacillus subtilis"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			st, c, eff := run(t, NewState(), bacillus(), tc.input)
			require.Equal(t, EffectConfirm, eff.Kind)
			assert.Contains(t, eff.Message, tc.want)
			assert.Equal(t, "Bacteria;Firmicutes;Bacillus;Bacillus", c.Representative, "suggestion unchanged before confirmation")

			_, c, eff = run(t, st, c, "y")
			require.Equal(t, EffectCommit, eff.Kind)
			assert.Equal(t, tc.want, eff.Decision.Taxonomy)
			assert.Equal(t, tc.want, c.Representative)
		})
	}
}

func TestStep_Remove(t *testing.T) {
	c := testCluster(cluster.NoMatch, []cluster.Flag{cluster.FlagNoMatch},
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis",
		"Archaea;Euryarchaeota;Methanobrevibacter;Methanobrevibacter smithii",
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis",
		"Eukaryota;Fungi",
	)
	st, _, eff := run(t, NewState(), c, "remove 2 4")
	require.Equal(t, EffectConfirm, eff.Kind)
	_, _, eff = run(t, st, c, "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.Equal(t, "Bacteria;Firmicutes;Bacillus;Bacillus subtilis", eff.Decision.Taxonomy)

	st, _, eff = run(t, NewState(), c, "remove 2-4")
	require.Equal(t, EffectConfirm, eff.Kind)
	assert.Contains(t, st.Pending.Question, "Bacteria;Firmicutes;Bacillus;Bacillus subtilis")

	st, got, eff := run(t, NewState(), c, "remove 1")
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Contains(t, eff.Message, "no consensus")
	assert.Nil(t, st.Pending)
	assert.Equal(t, c, got)
}

func TestStep_RemoveUsesCurrentTruncation(t *testing.T) {
	c := testCluster("Bacteria;Firmicutes;Bacillus;Bacillus", []cluster.Flag{cluster.FlagOutlier},
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis",
		"Bacteria;Firmicutes;Bacillus;Bacillus cereus",
		"Bacteria;Proteobacteria;Escherichia;Escherichia coli",
	)
	_, _, eff := run(t, NewState(), c, "remove 3", "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.Equal(t, "Bacteria;Firmicutes;Bacillus;Bacillus", eff.Decision.Taxonomy)
}

func TestStep_Manual(t *testing.T) {
	_, _, eff := run(t, NewState(), bacillus(), "Manual   Bacteria;Firmicutes;Bacillus;Bacillus sp. ABC  ", "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.Equal(t, "Bacteria;Firmicutes;Bacillus;Bacillus sp. ABC", eff.Decision.Taxonomy)

	for _, input := range []string{"manual Bacteria;Firmicutes\tjunk", "manual Bacteria;\x1b[31mFirmicutes"} {
		st, _, eff := run(t, NewState(), bacillus(), input)
		assert.Equal(t, EffectInvalid, eff.Kind, input)
		assert.Nil(t, st.Pending, input)
	}
}

func TestStep_Exclude(t *testing.T) {
	_, c, eff := run(t, NewState(), bacillus(), "exclude", "y")
	require.Equal(t, EffectCommit, eff.Kind)
	assert.True(t, eff.Decision.Excluded)
	assert.Equal(t, cluster.Excluded, eff.Decision.Taxonomy)
	assert.Equal(t, cluster.Excluded, c.Representative)
}

func TestStep_Exit(t *testing.T) {
	st, _, eff := run(t, NewState(), bacillus(), "exit")
	require.Equal(t, EffectConfirm, eff.Kind)
	assert.False(t, st.ExitReview)

	st, _, eff = run(t, st, bacillus(), "y")
	assert.Equal(t, EffectExit, eff.Kind)
	assert.True(t, st.ExitReview)
}

func TestStep_DisplayCommands(t *testing.T) {
	for input, want := range map[string]EffectKind{
		"flags": EffectShowFlags,
		"HELP":  EffectShowHelp,
		"show":  EffectShowCluster,
	} {
		st, c, eff := run(t, NewState(), bacillus(), input)
		assert.Equal(t, want, eff.Kind, input)
		assert.Equal(t, NewState(), st)
		assert.Equal(t, bacillus(), c)
	}
}

func TestAutoDecision(t *testing.T) {
	st := NewState()
	unflagged := testCluster("A;B", nil, "A;B")
	assert.False(t, AutoDecision(st, unflagged))

	two := testCluster("A;B", []cluster.Flag{cluster.FlagOutlier, cluster.FlagChlrMito}, "A;B")
	st = st.WithFlag("outlier")
	assert.False(t, AutoDecision(st, two))
	st = st.WithFlag("CHLRMITO")
	assert.True(t, AutoDecision(st, two))

	before := len(st.AcceptedFlags)
	st = st.WithFlag(cluster.FlagOutlier)
	assert.Len(t, st.AcceptedFlags, before, "accepting a flag twice is a no-op")
}

func TestParseSelection(t *testing.T) {
	sel, err := parseSelection([]string{"1", "3-5", "4"}, 6)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 3: true, 4: true, 5: true}, sel)

	for _, bad := range [][]string{{"0"}, {"7"}, {"2-1"}, {"1-"}, {"-2"}, {"x"}, {"1-2-3"}} {
		_, err := parseSelection(bad, 6)
		assert.Error(t, err, "%v", bad)
	}
}

func TestTruncateLike(t *testing.T) {
	paths := []string{
		"Bacteria;Firmicutes;Bacillus;Bacillus subtilis str. 168",
		"Bacteria;Firmicutes",
	}
	assert.Equal(t, []string{"Bacteria;Firmicutes;Bacillus", "Bacteria;Firmicutes"},
		truncateLike(paths, "Bacteria;Firmicutes;Bacillus"))
	assert.Equal(t, []string{"Bacteria;Firmicutes;Bacillus;Bacillus subtilis", "Bacteria;Firmicutes"},
		truncateLike(paths, "Bacteria;Firmicutes;Bacillus;Bacillus cereus"))
	assert.Equal(t, paths, truncateLike(paths, cluster.NoMatch))
}
