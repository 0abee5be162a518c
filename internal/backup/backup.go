// Package backup reads the metadata of an unencrypted device backup: the
// Manifest.plist descriptor and the Manifest.db index that maps in-device
// paths to the content-addressed files stored in the backup directory.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"howett.net/plist"

	"github.com/Napageneral/msgextract/internal/db"
)

// Well-known file names inside a backup.
const (
	ManifestPlistFilename = "Manifest.plist"
	ManifestDBFilename    = "Manifest.db"
	SMSDBFilename         = "sms.db"
	AddressBookFilename   = "AddressBook.sqlitedb"
)

var (
	// ErrManifestMissing means Manifest.plist or Manifest.db is absent.
	ErrManifestMissing = errors.New("backup is corrupt or in progress (manifest files missing); please verify contents are intact")
	// ErrEncryptedBackup means the descriptor reports an encrypted backup.
	ErrEncryptedBackup = errors.New("this backup is encrypted, but encrypted backups are not supported")
	// ErrRequiredFileMissing means the manifest index has no entry for a required file.
	ErrRequiredFileMissing = errors.New("failed to find required entry in the manifest database; please verify contents are intact")
	// ErrBackupNotFound means the backup directory itself does not exist.
	ErrBackupNotFound = errors.New("backup path isn't valid; check path or device hash")
)

// Descriptor is the subset of Manifest.plist this tool reads.
type Descriptor struct {
	IsEncrypted bool      `plist:"IsEncrypted"`
	Version     string    `plist:"Version"`
	Date        time.Time `plist:"Date"`
	Lockdown    struct {
		DeviceName     string `plist:"DeviceName"`
		ProductVersion string `plist:"ProductVersion"`
		SerialNumber   string `plist:"SerialNumber"`
	} `plist:"Lockdown"`
}

// CheckManifest verifies that both manifest files exist in dir.
func CheckManifest(dir string) error {
	for _, name := range []string{ManifestPlistFilename, ManifestDBFilename} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s", ErrManifestMissing, name)
		}
	}
	return nil
}

// ReadDescriptor decodes Manifest.plist (binary or XML) from dir.
func ReadDescriptor(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, ManifestPlistFilename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestMissing, ManifestPlistFilename)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var desc Descriptor
	if err := plist.NewDecoder(f).Decode(&desc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &desc, nil
}

// HashToPath returns where a content-addressed file lives relative to the
// backup root: the first two characters of its ID name the subdirectory.
func HashToPath(fileID string) string {
	if len(fileID) < 2 {
		return fileID
	}
	return filepath.Join(fileID[:2], fileID)
}

// LookupPhysicalPath finds the manifest entry whose relativePath ends in name
// and returns its path relative to the backup root.
//
// The first matching row is used; the manifest currently holds a single
// sms.db and a single AddressBook.sqlitedb.
func LookupPhysicalPath(ctx context.Context, q db.Querier, name string) (string, error) {
	var fileID string
	err := q.QueryRowContext(ctx,
		`SELECT fileID FROM Files WHERE relativePath LIKE ? LIMIT 1`,
		"%"+name,
	).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(fileID) < 2) {
		return "", fmt.Errorf("%w: %s", ErrRequiredFileMissing, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query manifest for %s: %w", name, err)
	}
	return HashToPath(fileID), nil
}

// ResolveStores opens Manifest.db in dir and returns the absolute paths of
// the message store and the address book. The manifest handle is closed
// before returning.
func ResolveStores(ctx context.Context, dir string, driver string) (smsPath string, addressBookPath string, err error) {
	manifest, err := db.Open(filepath.Join(dir, ManifestDBFilename), driver)
	if err != nil {
		return "", "", err
	}
	defer manifest.Close()

	sms, err := LookupPhysicalPath(ctx, manifest, SMSDBFilename)
	if err != nil {
		return "", "", err
	}
	ab, err := LookupPhysicalPath(ctx, manifest, AddressBookFilename)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, sms), filepath.Join(dir, ab), nil
}
