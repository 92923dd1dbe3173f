package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_CreateAndCleanup(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase)

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	wsPath := mgr.GetPath()
	if wsPath == "" {
		t.Fatal("GetPath() returned empty string")
	}

	if !strings.Contains(filepath.Base(wsPath), "bookbinder-") {
		t.Errorf("Expected timestamped directory, got: %s", wsPath)
	}

	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		t.Errorf("Staging directory does not exist: %s", wsPath)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("Staging directory still exists after cleanup: %s", wsPath)
	}
}

func TestManager_CreateSubdir(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer mgr.Cleanup() //nolint:errcheck

	sub, err := mgr.CreateSubdir("OEBPS/Images")
	if err != nil {
		t.Fatalf("CreateSubdir() failed: %v", err)
	}
	if _, err := os.Stat(sub); os.IsNotExist(err) {
		t.Errorf("Subdirectory does not exist: %s", sub)
	}
}

func TestManager_CreateSubdirBeforeCreate(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if _, err := mgr.CreateSubdir("OEBPS"); err == nil {
		t.Fatal("Expected error creating subdir before Create()")
	}
}

func TestManager_WriteFile(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer mgr.Cleanup() //nolint:errcheck

	if err := mgr.WriteFile("OEBPS/Styles/Style00.css", []byte("body{}")); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(mgr.GetPath(), "OEBPS", "Styles", "Style00.css"))
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if string(data) != "body{}" {
		t.Errorf("unexpected staged content: %q", data)
	}
}

func TestManager_CleanupWithoutCreate(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() on unused manager failed: %v", err)
	}
}
