//go:build linux

package ime

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"imecore/internal/config"
)

// Version is the engine version advertised to IBus.
const Version = "0.1.0"

// Component describes the IBus component file that lets ibus-daemon
// launch the engine.
type Component struct {
	XMLName     xml.Name          `xml:"component"`
	Name        string            `xml:"name"`
	Description string            `xml:"description"`
	Exec        string            `xml:"exec"`
	Version     string            `xml:"version"`
	Author      string            `xml:"author"`
	License     string            `xml:"license"`
	Textdomain  string            `xml:"textdomain"`
	Engines     []ComponentEngine `xml:"engines>engine"`
}

// ComponentEngine is one engine entry of a component.
type ComponentEngine struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

// NewComponent describes an engine started as execPath with the names
// from cfg.
func NewComponent(cfg config.IBusConfig, execPath string) *Component {
	return &Component{
		Name:        cfg.BusName,
		Description: "imecore input method",
		Exec:        execPath + " --ibus",
		Version:     Version,
		Author:      "imecore",
		License:     "MIT",
		Textdomain:  cfg.EngineName,
		Engines: []ComponentEngine{{
			Name:        cfg.EngineName,
			Language:    "zh",
			License:     "MIT",
			Author:      "imecore",
			Layout:      "us",
			LongName:    "imecore",
			Description: "Table-driven input method",
			Rank:        50,
			Symbol:      "中",
		}},
	}
}

// Marshal renders the component file.
func (c *Component) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode component: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// ComponentDir returns the per-user IBus component directory.
func ComponentDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "ibus", "component")
}

func componentPath(dir, engineName string) string {
	return filepath.Join(dir, engineName+".xml")
}

// InstallComponent writes the component file into dir and returns its
// path.
func InstallComponent(dir string, c *Component) (string, error) {
	if len(c.Engines) == 0 {
		return "", errors.New("component has no engine")
	}
	data, err := c.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create component directory: %w", err)
	}
	path := componentPath(dir, c.Engines[0].Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write component: %w", err)
	}
	return path, nil
}

// UninstallComponent removes the component file of engineName from dir.
// A missing file is not an error.
func UninstallComponent(dir, engineName string) error {
	err := os.Remove(componentPath(dir, engineName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IsComponentInstalled reports whether dir holds a component file for
// engineName.
func IsComponentInstalled(dir, engineName string) bool {
	_, err := os.Stat(componentPath(dir, engineName))
	return err == nil
}

// RestartIBus asks ibus-daemon to reload components.
func RestartIBus() error {
	return exec.Command("ibus", "restart").Run()
}

// IsActive reports whether engineName is the current IBus engine.
func IsActive(engineName string) bool {
	output, err := exec.Command("ibus", "engine").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(output)) == engineName
}

// Activate makes engineName the current IBus engine.
func Activate(engineName string) error {
	if err := exec.Command("ibus", "engine", engineName).Run(); err != nil {
		return fmt.Errorf("switch ibus engine: %w", err)
	}
	return nil
}
