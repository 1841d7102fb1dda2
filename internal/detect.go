package internal

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

const stateDBName = "state.vscdb"

// StoragePaths holds the detected paths for Cursor storage
type StoragePaths struct {
	BasePath         string // Base Cursor User directory
	GlobalStorage    string // globalStorage directory (legacy centralized store)
	WorkspaceStorage string // workspaceStorage directory (one store per workspace)
	DatabaseFile     string // set when a single database file was requested
}

// DetectStoragePaths detects the Cursor storage paths based on the operating system
func DetectStoragePaths() (StoragePaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return StoragePaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var basePath string
	switch runtime.GOOS {
	case "darwin":
		basePath = filepath.Join(home, "Library", "Application Support", "Cursor", "User")
	case "linux":
		basePath = filepath.Join(home, ".config", "Cursor", "User")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		basePath = filepath.Join(appData, "Cursor", "User")
	default:
		return StoragePaths{}, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	return StoragePathsFromBase(basePath), nil
}

// StoragePathsFromBase derives the storage layout under a Cursor User directory
func StoragePathsFromBase(basePath string) StoragePaths {
	return StoragePaths{
		BasePath:         basePath,
		GlobalStorage:    filepath.Join(basePath, "globalStorage"),
		WorkspaceStorage: filepath.Join(basePath, "workspaceStorage"),
	}
}

// GetStoragePaths resolves a custom location (a database file or a Cursor
// User directory), falling back to OS detection when custom is empty.
func GetStoragePaths(custom string) (StoragePaths, error) {
	if custom == "" {
		return DetectStoragePaths()
	}

	info, err := os.Stat(custom)
	if err != nil {
		return StoragePaths{}, &DBConnectionError{Path: custom, Err: err}
	}
	if !info.IsDir() {
		return StoragePaths{DatabaseFile: custom}, nil
	}
	return StoragePathsFromBase(custom), nil
}

// GetGlobalStorageDBPath returns the path to the globalStorage state.vscdb file
func (sp StoragePaths) GetGlobalStorageDBPath() string {
	return filepath.Join(sp.GlobalStorage, stateDBName)
}

// GlobalStorageExists checks if the globalStorage database exists
func (sp StoragePaths) GlobalStorageExists() bool {
	_, err := os.Stat(sp.GetGlobalStorageDBPath())
	return err == nil
}

// DiscoverStores lists every store: the legacy global store first, then
// per-workspace stores sorted by path.
func (sp StoragePaths) DiscoverStores() ([]StoreLocation, error) {
	if sp.DatabaseFile != "" {
		return []StoreLocation{{
			Path:            sp.DatabaseFile,
			WorkspaceFolder: ReadWorkspaceFolder(filepath.Dir(sp.DatabaseFile)),
		}}, nil
	}

	var locations []StoreLocation
	if sp.GlobalStorageExists() {
		locations = append(locations, StoreLocation{Path: sp.GetGlobalStorageDBPath()})
	}

	workspaceDBs, err := findWorkspaceDBs(sp.WorkspaceStorage)
	if err != nil {
		return nil, err
	}
	for _, dbPath := range workspaceDBs {
		locations = append(locations, StoreLocation{
			Path:            dbPath,
			WorkspaceFolder: ReadWorkspaceFolder(filepath.Dir(dbPath)),
		})
	}

	LogDebug("Discovered %d store(s) under %s", len(locations), sp.BasePath)
	return locations, nil
}

// findWorkspaceDBs returns workspaceStorage/<hash>/state.vscdb paths
func findWorkspaceDBs(root string) ([]string, error) {
	if root == "" {
		return nil, nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}
	root = filepath.Clean(root)

	var mu sync.Mutex
	var dbs []string

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip entries we can't access
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1

		if d.IsDir() {
			if depth > 1 {
				return filepath.SkipDir
			}
			return nil
		}
		if depth == 2 && d.Name() == stateDBName {
			mu.Lock()
			dbs = append(dbs, path)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace storage: %w", err)
	}

	sort.Strings(dbs)
	return dbs, nil
}

// ReadWorkspaceFolder returns the folder recorded in dir/workspace.json, or
// "" when there is none. file:// URIs are decoded to local paths.
func ReadWorkspaceFolder(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "workspace.json"))
	if err != nil {
		return ""
	}

	var workspaceData struct {
		Folder    string `json:"folder"`
		Workspace string `json:"workspace"`
	}
	if err := json.Unmarshal(data, &workspaceData); err != nil {
		return ""
	}

	folder := workspaceData.Folder
	if folder == "" {
		folder = workspaceData.Workspace
	}
	return decodeFolderURI(folder)
}

func decodeFolderURI(folder string) string {
	if !strings.HasPrefix(folder, "file://") {
		return folder
	}
	u, err := url.Parse(folder)
	if err != nil {
		return folder
	}
	path := u.Path
	// file:///c%3A/Users/... decodes to /c:/Users/...
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return path
}
