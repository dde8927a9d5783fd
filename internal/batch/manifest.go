package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Item is one image to analyze
type Item struct {
	ID        string `json:"id" parquet:"id"`
	ImagePath string `json:"image_path" parquet:"image_path"`
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// LoadManifest reads the items to process from a directory of images,
// a JSONL file or a Parquet file. Relative image paths resolve against the
// manifest's directory; URLs are kept as they are.
func LoadManifest(path string) ([]Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}

	var items []Item
	baseDir := filepath.Dir(path)
	if info.IsDir() {
		items, err = loadDirectory(path)
		baseDir = path
	} else {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".parquet":
			items, err = loadParquet(path)
		case ".jsonl", ".json":
			items, err = loadJSONL(path)
		default:
			return nil, fmt.Errorf("unsupported manifest format: %s (supported: directory, .parquet, .jsonl)", ext)
		}
	}
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].ImagePath == "" {
			return nil, fmt.Errorf("manifest item %d has no image_path", i+1)
		}
		if items[i].ID == "" {
			items[i].ID = itemID(items[i].ImagePath, i)
		}
		if !isURL(items[i].ImagePath) && !filepath.IsAbs(items[i].ImagePath) {
			items[i].ImagePath = filepath.Join(baseDir, items[i].ImagePath)
		}
	}
	uniqueIDs(items)

	slog.Debug("Manifest loaded", "path", path, "items", len(items))
	return items, nil
}

func loadDirectory(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		items = append(items, Item{
			ID:        strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			ImagePath: e.Name(),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ImagePath < items[j].ImagePath })
	return items, nil
}

func loadJSONL(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var items []Item
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item Item
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return items, nil
}

func loadParquet(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Item](pf)
	defer reader.Close()

	var items []Item
	rows := make([]Item, 128)
	for {
		n, err := reader.Read(rows)
		items = append(items, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Read parquet manifest", "rows", pf.NumRows(), "items", len(items))
	return items, nil
}

func itemID(imagePath string, idx int) string {
	base := filepath.Base(imagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		return fmt.Sprintf("item_%d", idx+1)
	}
	return base
}

// uniqueIDs makes every ID distinct once reduced to a file name, so each item
// gets its own narration file. Later duplicates get a _2, _3... suffix.
func uniqueIDs(items []Item) {
	seen := make(map[string]bool, len(items))
	for i := range items {
		id := items[i].ID
		name := safeFilename(id)
		for n := 2; seen[name]; n++ {
			id = fmt.Sprintf("%s_%d", items[i].ID, n)
			name = safeFilename(id)
		}
		seen[name] = true
		items[i].ID = id
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:")
}
