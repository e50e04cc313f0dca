package platform

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/transkribera/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/transkribera/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/transkribera/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("windows", "/Users/dev", "")
	require.Error(t, err)
}

func TestResolveModelDirOverride(t *testing.T) {
	t.Parallel()

	dir, err := ResolveModelDir("/srv/models/../models")
	require.NoError(t, err)
	require.Equal(t, "/srv/models", dir)
}

func noTool(string) (string, error)        { return "", errors.New("not found") }
func noFile(string) (os.FileInfo, error)   { return nil, os.ErrNotExist }
func emptyEnv(string) string               { return "" }
func hasTool(string) (string, error)       { return "/usr/bin/nvidia-smi", nil }
func envWith(v string) func(string) string { return func(string) string { return v } }

func TestDetectDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe Probe
		want  Device
	}{
		{
			name:  "linux without gpu",
			probe: Probe{GOOS: "linux", Arch: "amd64", LookPath: noTool, Stat: noFile, Getenv: emptyEnv},
			want:  DeviceCPU,
		},
		{
			name:  "linux with nvidia-smi",
			probe: Probe{GOOS: "linux", Arch: "amd64", LookPath: hasTool, Stat: noFile, Getenv: emptyEnv},
			want:  DeviceCUDA,
		},
		{
			name:  "apple silicon",
			probe: Probe{GOOS: "darwin", Arch: "arm64", LookPath: noTool, Stat: noFile, Getenv: emptyEnv},
			want:  DeviceMetal,
		},
		{
			name:  "intel mac",
			probe: Probe{GOOS: "darwin", Arch: "amd64", LookPath: noTool, Stat: noFile, Getenv: emptyEnv},
			want:  DeviceCPU,
		},
		{
			name:  "override forces cpu",
			probe: Probe{GOOS: "linux", Arch: "amd64", LookPath: hasTool, Stat: noFile, Getenv: envWith(" CPU ")},
			want:  DeviceCPU,
		},
		{
			name:  "unknown override ignored",
			probe: Probe{GOOS: "linux", Arch: "amd64", LookPath: hasTool, Stat: noFile, Getenv: envWith("tpu")},
			want:  DeviceCUDA,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, DetectDeviceWith(tt.probe))
		})
	}
}

func TestDeviceAccelerated(t *testing.T) {
	t.Parallel()

	require.True(t, DeviceCUDA.Accelerated())
	require.True(t, DeviceMetal.Accelerated())
	require.False(t, DeviceCPU.Accelerated())
	require.False(t, DeviceRemote.Accelerated())
}
