package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Settings struct {
	PlayerName   string  `json:"playerName"`
	Color        int     `json:"color"`
	ESPEnabled   bool    `json:"espEnabled"`
	FOV          float64 `json:"fov"`
	Orthographic bool    `json:"orthographic"`
	OrthoScale   float64 `json:"orthoScale"`
	Theme        string  `json:"theme"`
	DirectoryURL string  `json:"directoryUrl"`
	Vsync        bool    `json:"vsync"`
}

var gs = Settings{
	PlayerName:   "Player",
	Color:        1, // blue
	FOV:          90,
	OrthoScale:   600,
	DirectoryURL: "http://127.0.0.1:8080",
	Vsync:        true,
}

var (
	settingsDirty    bool
	lastSettingsSave time.Time
)

func settingsPath() string {
	return filepath.Join(baseDir, "settings.json")
}

func loadSettings() bool {
	data, err := os.ReadFile(settingsPath())
	if err != nil {
		return false
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		logError("settings.json unreadable: %v", err)
		return false
	}
	if s.FOV <= 0 || s.FOV >= 180 {
		s.FOV = 90
	}
	if s.OrthoScale <= 0 {
		s.OrthoScale = 600
	}
	if s.Color < 0 || s.Color > 7 {
		s.Color = 1
	}
	if s.PlayerName == "" {
		s.PlayerName = "Player"
	}
	gs = s
	return true
}

func saveSettings() {
	data, err := json.MarshalIndent(&gs, "", "  ")
	if err != nil {
		logError("marshal settings: %v", err)
		return
	}
	if err := os.WriteFile(settingsPath(), data, 0644); err != nil {
		logError("save settings: %v", err)
	}
}

// cameraParams derives the projector configuration from settings.
func cameraParams() CameraParams {
	return CameraParams{
		FOV:          gs.FOV,
		Orthographic: gs.Orthographic,
		OrthoScale:   gs.OrthoScale,
	}
}

// joinName is the wire name for the current settings; an "-ESP" suffix
// marks overlay users to the rest of the lobby.
func joinName() string {
	name := gs.PlayerName
	if gs.ESPEnabled && !strings.HasSuffix(name, "-ESP") {
		name += "-ESP"
	}
	return name
}
