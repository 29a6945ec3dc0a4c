package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "\ufeffid,ind_0_3,ind_80p\nA,1,2\n\n B , 3 ,4\n"
	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "ind_0_3", "ind_80p"}, header)
	assert.Equal(t, [][]string{{"A", "1", "2"}, {"B", "3", "4"}}, rows)
}

func TestReadCSV_Tab(t *testing.T) {
	input := "id\tclinic\nA\t2\n"
	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: DelimiterFor("supply.TSV")})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "clinic"}, header)
	assert.Equal(t, [][]string{{"A", "2"}}, rows)
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader("id,name\n1,\"unterminated\n"), CSVOptions{})
	require.Error(t, err)
}

func TestStreamCSV_Comment(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("# generated\na,b\n1,2\n"), CSVOptions{Comment: '#'})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	var sb strings.Builder
	for range 1000 {
		sb.WriteString("a,b,c\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count == 5 {
			cancel()
			break
		}
	}
	for range rowCh { //nolint:revive // drain
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestDelimiterFor(t *testing.T) {
	assert.Equal(t, '\t', DelimiterFor("a.tsv"))
	assert.Equal(t, '\t', DelimiterFor("a.tab"))
	assert.Equal(t, ',', DelimiterFor("a.csv"))
	assert.Equal(t, ',', DelimiterFor("a"))
}
