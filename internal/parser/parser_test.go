package parser

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxdata/internal/models"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		want      models.Reading
		wantErr   bool
		wantField string
	}{
		{
			name: "valid record",
			line: "20230115\t250\t150\t100",
			want: models.Reading{
				Date:           time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
				MaxTemperature: 250,
				MinTemperature: 150,
				Precipitation:  100,
			},
		},
		{
			name: "sentinel values are valid integers",
			line: "20230115\t-9999\t-9999\t-9999",
			want: models.Reading{
				Date:           time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
				MaxTemperature: models.MissingValue,
				MinTemperature: models.MissingValue,
				Precipitation:  models.MissingValue,
			},
		},
		{
			name: "padded fields and CRLF",
			line: "19850101\t  -22\t -128\t    94\r\n",
			want: models.Reading{
				Date:           time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
				MaxTemperature: -22,
				MinTemperature: -128,
				Precipitation:  94,
			},
		},
		{
			name: "surrounding whitespace and trailing tab",
			line: " 20230101\t100\t50\t10\t\n",
			want: models.Reading{
				Date:           time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
				MaxTemperature: 100,
				MinTemperature: 50,
				Precipitation:  10,
			},
		},
		{name: "too few fields", line: "20230115\t250\t150", wantErr: true},
		{name: "too many fields", line: "20230115\t250\t150\t1\t2", wantErr: true},
		{name: "space separated", line: "20230115 250 150 100", wantErr: true},
		{name: "iso date", line: "2023-01-15\t250\t150\t100", wantErr: true, wantField: "date"},
		{name: "impossible date", line: "20230230\t250\t150\t100", wantErr: true, wantField: "date"},
		{name: "non-integer max", line: "20230115\tabc\t150\t100", wantErr: true, wantField: "max_temperature"},
		{name: "decimal min", line: "20230115\t250\t15.5\t100", wantErr: true, wantField: "min_temperature"},
		{name: "empty precipitation", line: "20230115\t250\t150\t\t", wantErr: true},
		{name: "blank middle field", line: "20230115\t250\t\t100", wantErr: true, wantField: "min_temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedLine)

				var pe *ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.wantField, pe.Field)
				assert.False(t, pe.IsTransient())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{
		File:       "wx/USC001.txt",
		LineNumber: 12,
		Line:       "bogus",
		Field:      "date",
		Err:        errors.New("bad"),
	}
	assert.Equal(t, `wx/USC001.txt:12: malformed line (date) "bogus": bad`, err.Error())
}

func TestScanner_SkipsBlankLinesAndStampsLocation(t *testing.T) {
	input := strings.Join([]string{
		"20230101\t100\t50\t10",
		"",
		"20230102\tx\t40\t20",
		"20230103\t-9999\t40\t20",
	}, "\n")

	sc := NewScanner(strings.NewReader(input), "station.txt")

	var lines []int
	var parsed, failed int
	for sc.Scan() {
		lines = append(lines, sc.LineNumber())
		_, err := sc.Reading()
		if err != nil {
			failed++
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "station.txt", pe.File)
			assert.Equal(t, 3, pe.LineNumber)
			continue
		}
		parsed++
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, []int{1, 3, 4}, lines)
	assert.Equal(t, 2, parsed)
	assert.Equal(t, 1, failed)
}

func TestScanner_OverlongLineIsSkipped(t *testing.T) {
	input := "20230101\t100\t50\t10\n" +
		strings.Repeat("x", MaxLineLength+6*1024) + "\n" +
		"20230103\t90\t30\t0"

	sc := NewScanner(strings.NewReader(input), "long.txt")

	var parsed []int
	var tooLong *ParseError
	for sc.Scan() {
		_, err := sc.Reading()
		if err != nil {
			require.ErrorAs(t, err, &tooLong)
			continue
		}
		parsed = append(parsed, sc.LineNumber())
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, []int{1, 3}, parsed)
	require.NotNil(t, tooLong)
	assert.ErrorIs(t, tooLong, ErrLineTooLong)
	assert.ErrorIs(t, tooLong, ErrMalformedLine)
	assert.Equal(t, 2, tooLong.LineNumber)
	assert.Less(t, len(tooLong.Error()), 200)
}

func TestScanner_LineAtLimitParses(t *testing.T) {
	record := "20230101\t100\t50\t10"
	line := record + strings.Repeat(" ", MaxLineLength-len(record))

	sc := NewScanner(strings.NewReader(line), "")
	require.True(t, sc.Scan())
	got, err := sc.Reading()
	require.NoError(t, err)
	assert.Equal(t, 100, got.MaxTemperature)
	assert.False(t, sc.Scan())
}

func BenchmarkParseLine(b *testing.B) {
	lines := make([]string, 365)
	for i := range lines {
		day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		lines[i] = day.Format(dateLayout) + "\t" + strconv.Itoa(i) + "\t-9999\t12"
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseLine(lines[i%len(lines)]); err != nil {
			b.Fatal(err)
		}
	}
}
