package cluster

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directStream = `MQR_100_0
>AB001 Bacteria;Firmicutes;Bacillus;Bacillus subtilis
>AB002 Bacteria;Firmicutes;Bacillus;Bacillus subtilis
MQR_100_1
>AB003 Eukaryota;Chloroplastida;Chloroplast
>AB004 Bacteria;Proteobacteria;Mitochondria
>AB005 Bacteria;Proteobacteria;Rickettsiales
end
`

func TestParse_DirectFormat(t *testing.T) {
	clusters, err := Parse(strings.NewReader(directStream))
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	assert.Equal(t, "MQR_100_0", clusters[0].Label)
	assert.Len(t, clusters[0].Members, 2)
	assert.Equal(t, "AB001", clusters[0].Members[0].Accession)
	assert.Equal(t, "Bacteria;Firmicutes;Bacillus;Bacillus subtilis", clusters[0].Members[0].Taxonomy)
	assert.Equal(t, ">AB001 Bacteria;Firmicutes;Bacillus;Bacillus subtilis", clusters[0].Members[0].Raw)

	assert.Equal(t, []string{"AB003", "AB004", "AB005"}, accessions(clusters[1]))
}

func TestParse_BareIndexUsesIdentity(t *testing.T) {
	stream := "7\n>AB001 Bacteria;Firmicutes\n12\n>AB002 Archaea;Euryarchaeota\nend"
	clusters, err := Parse(strings.NewReader(stream), WithIdentity("MQR", 99))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "MQR_99_7", clusters[0].Label)
	assert.Equal(t, "MQR_99_12", clusters[1].Label)
}

func TestParse_LoopFormat(t *testing.T) {
	stream := strings.Join([]string{
		"MQR_99_0",
		"MQR_100_4\t>AB001 Bacteria;Firmicutes;Bacillus",
		"MQR_100_9\t>AB007 Bacteria;Firmicutes;Bacillus",
		"MQR_100_4\t>AB002 Bacteria;Firmicutes;Bacillus",
		"end",
	}, "\n")
	clusters, err := Parse(strings.NewReader(stream), WithLoopFormat())
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, "MQR_100_4", c.Members[0].Lineage)
	assert.Equal(t, "AB007", c.Members[1].Accession)
	assert.Equal(t, []string{"MQR_100_4", "MQR_100_9"}, c.Lineages())

	m := LineageMap(clusters)
	assert.Equal(t, "MQR_99_0", m["MQR_100_9"])
}

func TestParse_FormatErrors(t *testing.T) {
	cases := []struct {
		name   string
		stream string
		opts   []ParseOption
	}{
		{"missing end", "MQR_100_0\n>AB001 Bacteria\n", nil},
		{"empty stream", "", nil},
		{"unparseable label", "MQR-100-0\n>AB001 Bacteria\nend\n", nil},
		{"bare index without identity", "3\n>AB001 Bacteria\nend\n", nil},
		{"member before label", ">AB001 Bacteria\nend\n", nil},
		{"member without taxonomy", "MQR_100_0\n>AB001\nend\n", nil},
		{"empty cluster", "MQR_100_0\nMQR_100_1\n>AB001 Bacteria\nend\n", nil},
		{"content after end", "MQR_100_0\n>AB001 Bacteria\nend\nMQR_100_1\n", nil},
		{"loop line without lineage", "MQR_99_0\n>AB001 Bacteria\nend\n", []ParseOption{WithLoopFormat()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.stream), tc.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "expected ErrFormat, got %v", err)
			var fe *FormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestParse_EndOnlyIsEmpty(t *testing.T) {
	clusters, err := Parse(strings.NewReader("end\n\n"))
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestScanner_StopsAtFirstError(t *testing.T) {
	stream := "MQR_100_0\n>AB001 Bacteria\nbad-label\n>AB002 Bacteria\nend\n"
	sc := NewScanner(strings.NewReader(stream))
	var got []string
	for sc.Next() {
		got = append(got, sc.Cluster().Label)
	}
	require.Error(t, sc.Err())
	assert.Empty(t, got)
	assert.False(t, sc.Next())
}

func TestWriteMembership_ReadsBack(t *testing.T) {
	clusters, err := Parse(strings.NewReader(directStream))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMembership(&buf, clusters))

	again, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, clusters, again)
}

func TestParseLabel(t *testing.T) {
	prefix, identity, index, err := ParseLabel("cv_run_95_12")
	require.NoError(t, err)
	assert.Equal(t, "cv_run", prefix)
	assert.Equal(t, 95, identity)
	assert.Equal(t, 12, index)

	for _, bad := range []string{"MQR_100", "_100_1", "MQR_x_1", "MQR_100_-1"} {
		_, _, _, err := ParseLabel(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "MQR_90_3", FormatLabel("MQR", 90, 3))
}

func TestFlags(t *testing.T) {
	flags := SplitFlags("Outlier, ChlrMito,,")
	assert.Equal(t, []Flag{FlagOutlier, FlagChlrMito}, flags)
	assert.Equal(t, "Outlier,ChlrMito", JoinFlags(flags))

	c := Cluster{Flags: flags}
	assert.True(t, c.Flagged())
	assert.True(t, c.HasFlag(FlagChlrMito))
	assert.False(t, c.HasFlag(FlagNoMatch))

	cp := c.Clone()
	cp.Flags[0] = FlagNoMatch
	assert.Equal(t, FlagOutlier, c.Flags[0])
}

func accessions(c Cluster) []string {
	var out []string
	for _, m := range c.Members {
		out = append(out, m.Accession)
	}
	return out
}
