package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "transkribera"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

func defaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appDirName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appDirName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

// Device is the compute target inference runs on.
type Device string

const (
	DeviceCPU    Device = "cpu"
	DeviceCUDA   Device = "cuda"
	DeviceMetal  Device = "metal"
	DeviceRemote Device = "remote"
)

// Accelerated reports whether the device is a local GPU.
func (d Device) Accelerated() bool {
	return d == DeviceCUDA || d == DeviceMetal
}

const deviceOverrideEnv = "TRANSKRIBERA_DEVICE"

// Probe abstracts the host checks used for device selection.
type Probe struct {
	GOOS     string
	Arch     string
	LookPath func(string) (string, error)
	Stat     func(string) (os.FileInfo, error)
	Getenv   func(string) string
}

func HostProbe() Probe {
	rt := CurrentRuntime()
	return Probe{
		GOOS:     rt.OS,
		Arch:     rt.Arch,
		LookPath: exec.LookPath,
		Stat:     os.Stat,
		Getenv:   os.Getenv,
	}
}

// DetectDevice prefers an accelerator and falls back to CPU.
func DetectDevice() Device {
	return DetectDeviceWith(HostProbe())
}

func DetectDeviceWith(p Probe) Device {
	if p.Getenv != nil {
		switch Device(strings.ToLower(strings.TrimSpace(p.Getenv(deviceOverrideEnv)))) {
		case DeviceCPU:
			return DeviceCPU
		case DeviceCUDA:
			return DeviceCUDA
		case DeviceMetal:
			return DeviceMetal
		}
	}

	if p.GOOS == "darwin" && p.Arch == "arm64" {
		return DeviceMetal
	}

	if p.GOOS == "linux" {
		if p.LookPath != nil {
			if _, err := p.LookPath("nvidia-smi"); err == nil {
				return DeviceCUDA
			}
		}
		if p.Stat != nil {
			if _, err := p.Stat("/dev/nvidia0"); err == nil {
				return DeviceCUDA
			}
		}
	}

	return DeviceCPU
}
