package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Info summarizes one backup found under a backup root.
type Info struct {
	DeviceHash     string    `json:"device_hash"`
	Path           string    `json:"path"`
	DeviceName     string    `json:"device_name,omitempty"`
	ProductVersion string    `json:"product_version,omitempty"`
	Date           time.Time `json:"date,omitempty"`
	IsEncrypted    bool      `json:"is_encrypted"`
}

// List returns the backups directly under root, newest first. Directories
// without a readable Manifest.plist are skipped.
func List(root string, logger *slog.Logger) ([]Info, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup root %s: %w", root, err)
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		desc, err := ReadDescriptor(dir)
		if err != nil {
			logger.Debug("skipping backup directory", "path", dir, "error", err)
			continue
		}
		out = append(out, Info{
			DeviceHash:     e.Name(),
			Path:           dir,
			DeviceName:     desc.Lockdown.DeviceName,
			ProductVersion: desc.Lockdown.ProductVersion,
			Date:           desc.Date,
			IsEncrypted:    desc.IsEncrypted,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].DeviceHash < out[j].DeviceHash
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// Locate returns the directory of the backup identified by deviceHash under root.
func Locate(root string, deviceHash string) (string, error) {
	dir := filepath.Join(root, deviceHash)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrBackupNotFound, dir)
	}
	return dir, nil
}
