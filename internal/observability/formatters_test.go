package observability

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/saccharis/SACCHARIS-2/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintScrapeStats(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	stats := &types.ScrapeStats{
		Characterized: types.CharacterizedStats{Retrieved: 250, Accepted: 230, Duplicate: 12, Fragment: 5, Missing: 3},
		Remote:        types.RemoteStats{Queried: 230, Retrieved: 230},
	}
	p.PrintScrapeStats("PL9", types.ModeCharacterized, stats)
	output := buf.String()

	assert.Contains(t, output, "CATALOG SCRAPE SUMMARY")
	assert.Contains(t, output, "PL9")
	assert.Contains(t, output, "230")
	assert.NotContains(t, output, "Uncharacterized")
	assert.NotContains(t, output, "no domain")
}

func TestPrintScrapeStats_AllMode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	stats := &types.ScrapeStats{
		Uncharacterized: types.UncharacterizedStats{Retrieved: 40, Accepted: 38, Duplicate: 1, NoDomain: 1},
	}
	p.PrintScrapeStats("GH5", types.ModeAllCAZymes, stats)

	assert.Contains(t, buf.String(), "Uncharacterized retrieved")
	assert.Contains(t, buf.String(), "no domain")
}

func TestPrintScrapeStats_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintScrapeStats("GH5", types.ModeCharacterized, nil)
	assert.Empty(t, buf.String())
}

func TestPrintStageTimings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintStageTimings("PL9", []StageTiming{
		{Stage: "ACQUIRE", Duration: 2 * time.Second, Cached: true},
		{Stage: "ALIGN", Duration: 90 * time.Second},
	})
	output := buf.String()

	assert.Contains(t, output, "STAGE TIMINGS: PL9")
	assert.Contains(t, output, "(cached)")
	assert.Contains(t, output, "1m 30s")
	assert.Contains(t, output, "1m 32s")
}

func TestPrintBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintBatchSummary([]string{"GH5"}, map[string]error{"PL9": errors.New("boom")})

	assert.Contains(t, buf.String(), "Succeeded: 1")
	assert.Contains(t, buf.String(), "PL9: boom")
}

func TestProgress_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Progress("NCBI", 1, 2)
	p.Progress("NCBI", 2, 2)
	assert.Equal(t, "NCBI: 1/2\nNCBI: 2/2\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{4200 * time.Millisecond, "4.2s"},
		{125 * time.Second, "2m 05s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}
