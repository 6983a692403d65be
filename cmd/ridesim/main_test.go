package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/fsutil"
)

const testCourseJSON = `{"points":[{"lat":0,"lon":0,"ele":0},{"lat":0.001,"lon":0,"ele":5}]}`

const testRiderJSON = `{
	"cp_w": 250, "w_prime_j": 20000, "cda": 0.3,
	"rider_mass_kg": 70, "bike_mass_kg": 9, "drivetrain": "ultegra",
	"pdc": [{"duration_sec": 1200, "power_w": 280}, {"duration_sec": 3600, "power_w": 250}]
}`

func memFSWithFixtures(t *testing.T) fsutil.FileSystem {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/course.json", []byte(testCourseJSON), 0o644))
	require.NoError(t, mfs.WriteFile("/rider.json", []byte(testRiderJSON), 0o644))
	return mfs
}

func TestBuildRequestParsesCourseAndRider(t *testing.T) {
	fs := memFSWithFixtures(t)
	req, err := buildRequest(fs, "/course.json", "/rider.json", config.Empty())
	require.NoError(t, err)
	assert.Equal(t, 250.0, req.Profile.CPWatts)
	assert.Equal(t, "ultegra", string(req.Profile.Drivetrain))
}

func TestBuildRequestRejectsMissingCourseFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/rider.json", []byte(testRiderJSON), 0o644))
	_, err := buildRequest(fs, "/missing.json", "/rider.json", config.Empty())
	assert.Error(t, err)
}

func TestBuildRequestRejectsInvalidRiderProfile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/course.json", []byte(testCourseJSON), 0o644))
	require.NoError(t, mfs.WriteFile("/rider.json", []byte(`{"cp_w":0}`), 0o644))
	_, err := buildRequest(mfs, "/course.json", "/rider.json", config.Empty())
	assert.Error(t, err)
}

func TestBuildRequestDefaultsPDCFromCPWhenAnchorsOmitted(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/course.json", []byte(testCourseJSON), 0o644))
	require.NoError(t, mfs.WriteFile("/rider.json", []byte(`{
		"cp_w": 220, "w_prime_j": 18000, "cda": 0.32,
		"rider_mass_kg": 68, "bike_mass_kg": 8, "drivetrain": "105"
	}`), 0o644))
	req, err := buildRequest(mfs, "/course.json", "/rider.json", config.Empty())
	require.NoError(t, err)
	assert.InDelta(t, 220, req.Profile.PDC.PowerAt(3600), 1e-6)
}

func TestRunRequiresCourseAndRiderFlags(t *testing.T) {
	assert.Equal(t, exitUsage, run(nil))
}

func TestRunRejectsUnknownSpeedUnits(t *testing.T) {
	code := run([]string{"-course", "/x.json", "-rider", "/y.json", "-speed-units", "furlongs"})
	assert.Equal(t, exitUsage, code)
}

func TestRunPrintsVersionAndExits(t *testing.T) {
	assert.Equal(t, exitOK, run([]string{"-version"}))
}
