package main

import (
	"strings"
	"testing"
)

func TestDevicesListsCamerasAndSelection(t *testing.T) {
	env := setupCLITestEnv(t, "Integrated Webcam", "USB Rear Camera")
	out, err := runCLI(t, env, []string{"devices"}, "")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	requireContains(t, out, "Integrated Webcam")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "USB Rear Camera") && !strings.Contains(line, "yes") {
			t.Fatalf("rear camera should be selected: %q", line)
		}
		if strings.Contains(line, "Integrated Webcam") && !strings.Contains(line, "no") {
			t.Fatalf("webcam should not be selected: %q", line)
		}
	}
}

func TestDevicesHonoursDeviceFlag(t *testing.T) {
	env := setupCLITestEnv(t, "Integrated Webcam", "USB Rear Camera")
	out, err := runCLI(t, env, []string{"devices", "--device", "/dev/video0"}, "")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "/dev/video0") && !strings.Contains(line, "yes") {
			t.Fatalf("override should be selected: %q", line)
		}
	}
}

func TestDevicesWithoutCameras(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, []string{"devices"}, "")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	requireContains(t, out, "No cameras found")
}
