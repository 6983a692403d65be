package resultio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ridesim/internal/fsutil"
	"github.com/banshee-data/ridesim/internal/kernel"
)

func sampleResult() kernel.SimulationResult {
	return kernel.SimulationResult{
		TotalTimeSec:     3600,
		AvgSpeedKmh:      28.5,
		AvgPowerW:        245,
		NormalizedPowerW: 260,
		WorkKJ:            880,
		DistanceKm:        28.5,
		ElevationGainM:    320,
		PerUserSegment: []kernel.UserSegmentRollup{
			{ID: "climb-1", DurationSec: 600, AvgPowerW: 290, AvgSpeedKmh: 18},
		},
		Samples: []kernel.TrackSample{
			{DistKm: 0, EleM: 100, SpeedKmh: 0, PowerW: 0, TimeSec: 0},
			{DistKm: 0.1, EleM: 101, SpeedKmh: 30, PowerW: 240, TimeSec: 12},
		},
		Diagnostics: kernel.Diagnostics{
			RunID: "test-run", SolverIterations: 12, Converged: true, Feasible: true,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleResult()
	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEncodeUsesDocumentedFieldNames(t *testing.T) {
	data, err := Encode(sampleResult())
	require.NoError(t, err)
	body := string(data)
	for _, field := range []string{`"total_time_sec"`, `"avg_power_w"`, `"normalized_power_w"`, `"work_kj"`, `"run_id"`} {
		assert.Contains(t, body, field)
	}
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	original := sampleResult()

	require.NoError(t, WriteFile(fs, "result.json", original))
	decoded, err := ReadFile(fs, "result.json")
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}
