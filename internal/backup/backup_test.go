package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Napageneral/msgextract/internal/db"
	"github.com/Napageneral/msgextract/internal/testutil"
)

func TestHashToPath(t *testing.T) {
	got := HashToPath("3d0d7e5fb2ce288813306e4d4636395e047a3d28")
	want := filepath.Join("3d", "3d0d7e5fb2ce288813306e4d4636395e047a3d28")
	if got != want {
		t.Fatalf("HashToPath=%q want %q", got, want)
	}
}

func TestLookupPhysicalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestDBFilename)
	testutil.CreateManifestDB(t, path, testutil.DefaultManifestFiles())

	d, err := db.Open(path, db.DriverModernc)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	got, err := LookupPhysicalPath(ctx, d, SMSDBFilename)
	if err != nil {
		t.Fatalf("LookupPhysicalPath(sms.db): %v", err)
	}
	if want := filepath.Join("46", "469af719d01883a826c1bb5e834aafde3e8d5c33"); got != want {
		t.Fatalf("sms.db path=%q want %q", got, want)
	}

	got, err = LookupPhysicalPath(ctx, d, AddressBookFilename)
	if err != nil {
		t.Fatalf("LookupPhysicalPath(AddressBook): %v", err)
	}
	if want := filepath.Join("c1", "c18c568fb88c22ab4a6b464aba8474edd2586ad4"); got != want {
		t.Fatalf("address book path=%q want %q", got, want)
	}

	if _, err := LookupPhysicalPath(ctx, d, "com.apple.Preferences.plist"); !errors.Is(err, ErrRequiredFileMissing) {
		t.Fatalf("expected ErrRequiredFileMissing, got %v", err)
	}
}

func TestCheckManifest(t *testing.T) {
	dir := t.TempDir()
	if err := CheckManifest(dir); !errors.Is(err, ErrManifestMissing) {
		t.Fatalf("expected ErrManifestMissing for empty dir, got %v", err)
	}

	testutil.WriteManifestPlist(t, filepath.Join(dir, ManifestPlistFilename), testutil.Descriptor{})
	if err := CheckManifest(dir); !errors.Is(err, ErrManifestMissing) {
		t.Fatalf("expected ErrManifestMissing without Manifest.db, got %v", err)
	}

	testutil.CreateManifestDB(t, filepath.Join(dir, ManifestDBFilename), nil)
	if err := CheckManifest(dir); err != nil {
		t.Fatalf("CheckManifest: %v", err)
	}
}

func TestReadDescriptor(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testutil.WriteManifestPlist(t, filepath.Join(dir, ManifestPlistFilename), testutil.Descriptor{
		IsEncrypted: true,
		DeviceName:  "Frodo's iPhone",
		Version:     "10.0",
		Date:        date,
	})

	desc, err := ReadDescriptor(dir)
	if err != nil {
		t.Fatalf("ReadDescriptor: %v", err)
	}
	if !desc.IsEncrypted {
		t.Fatalf("expected IsEncrypted")
	}
	if desc.Lockdown.DeviceName != "Frodo's iPhone" {
		t.Fatalf("device name=%q", desc.Lockdown.DeviceName)
	}
	if !desc.Date.Equal(date) {
		t.Fatalf("date=%v want %v", desc.Date, date)
	}
}

func TestReadDescriptor_XML(t *testing.T) {
	dir := t.TempDir()
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>IsEncrypted</key>
	<false/>
	<key>Lockdown</key>
	<dict>
		<key>DeviceName</key>
		<string>Sam's iPhone</string>
	</dict>
</dict>
</plist>
`
	if err := os.WriteFile(filepath.Join(dir, ManifestPlistFilename), []byte(xml), 0644); err != nil {
		t.Fatalf("write plist: %v", err)
	}
	desc, err := ReadDescriptor(dir)
	if err != nil {
		t.Fatalf("ReadDescriptor: %v", err)
	}
	if desc.IsEncrypted || desc.Lockdown.DeviceName != "Sam's iPhone" {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
}

func TestResolveStores(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteBackup(t, dir, testutil.DefaultBackup())

	sms, ab, err := ResolveStores(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("ResolveStores: %v", err)
	}
	if sms != testutil.HashedPath(dir, testutil.SMSFileID) {
		t.Fatalf("sms path=%q", sms)
	}
	if ab != testutil.HashedPath(dir, testutil.AddressBookFileID) {
		t.Fatalf("address book path=%q", ab)
	}
}

func TestResolveStores_MissingAddressBook(t *testing.T) {
	dir := t.TempDir()
	b := testutil.DefaultBackup()
	b.Files = b.Files[:1]
	testutil.WriteBackup(t, dir, b)

	if _, _, err := ResolveStores(context.Background(), dir, ""); !errors.Is(err, ErrRequiredFileMissing) {
		t.Fatalf("expected ErrRequiredFileMissing, got %v", err)
	}
}

func TestListAndLocate(t *testing.T) {
	root := t.TempDir()

	older := testutil.DefaultBackup()
	older.Descriptor.Date = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	older.Descriptor.DeviceName = "Old iPhone"
	testutil.WriteBackup(t, filepath.Join(root, "aaaa"), older)
	testutil.WriteBackup(t, filepath.Join(root, "bbbb"), testutil.DefaultBackup())
	if err := os.MkdirAll(filepath.Join(root, "not-a-backup"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	infos, err := List(root, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 backups, got %+v", infos)
	}
	if infos[0].DeviceHash != "bbbb" || infos[1].DeviceName != "Old iPhone" {
		t.Fatalf("expected newest first, got %+v", infos)
	}

	if dir, err := Locate(root, "aaaa"); err != nil || dir != filepath.Join(root, "aaaa") {
		t.Fatalf("Locate(aaaa)=%q,%v", dir, err)
	}
	if _, err := Locate(root, "missing"); !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("expected ErrBackupNotFound, got %v", err)
	}
}
