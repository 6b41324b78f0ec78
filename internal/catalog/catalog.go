// Package catalog serves the on-disk sheet library.
//
// Sheets are named "<task>-<staff>", for example "chouon-001-grand-staff",
// and may be stored as .musicxml or .xml, optionally gzip or xz compressed.
package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/internal/archive"
	"github.com/FocuswithJustin/ScoreShift/internal/validation"
)

// KnownStaves are the staff layouts the sheet library is published in.
var KnownStaves = []string{"grand-staff", "four-staves"}

// Sheet is one entry of the catalog.
type Sheet struct {
	Name  string `json:"name"`
	Task  string `json:"task"`
	Staff string `json:"staff,omitempty"`
	File  string `json:"file"`
	Size  int64  `json:"size"`
}

// Catalog is a directory of sheets.
type Catalog struct {
	dir string
}

// Open returns a catalog over dir, which must be an existing directory.
func Open(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("sheet directory", dir)
		}
		return nil, errors.NewIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidation("dir", dir+" is not a directory")
	}
	return &Catalog{dir: dir}, nil
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// List returns all sheets sorted by name. When a sheet exists in several
// encodings the first file in directory order wins.
func (c *Catalog) List() ([]Sheet, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.NewIO("read", c.dir, err)
	}

	seen := make(map[string]bool)
	var sheets []Sheet
	for _, e := range entries {
		if e.IsDir() || !archive.IsScoreName(e.Name()) {
			continue
		}
		name := archive.ScoreID(e.Name())
		if seen[name] {
			continue
		}
		seen[name] = true

		info, err := e.Info()
		if err != nil {
			return nil, errors.NewIO("stat", e.Name(), err)
		}
		task, staff := SplitName(name)
		sheets = append(sheets, Sheet{
			Name:  name,
			Task:  task,
			Staff: staff,
			File:  e.Name(),
			Size:  info.Size(),
		})
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].Name < sheets[j].Name })
	return sheets, nil
}

// Find returns the catalog entry for name.
func (c *Catalog) Find(name string) (Sheet, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return Sheet{}, errors.NewValidation("name", err.Error())
	}
	sheets, err := c.List()
	if err != nil {
		return Sheet{}, err
	}
	for _, s := range sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return Sheet{}, errors.NewNotFound("sheet", name)
}

// Load returns the uncompressed MusicXML of the named sheet.
func (c *Catalog) Load(name string) ([]byte, error) {
	s, err := c.Find(name)
	if err != nil {
		return nil, err
	}
	rel, err := validation.SanitizePath(c.dir, s.File)
	if err != nil {
		return nil, errors.NewValidation("name", err.Error())
	}
	return archive.ReadScore(filepath.Join(c.dir, rel))
}

// Tasks returns the distinct task names, sorted.
func (c *Catalog) Tasks() ([]string, error) {
	return c.axis(func(s Sheet) string { return s.Task })
}

// Staves returns the distinct staff layouts, sorted.
func (c *Catalog) Staves() ([]string, error) {
	return c.axis(func(s Sheet) string { return s.Staff })
}

func (c *Catalog) axis(field func(Sheet) string) ([]string, error) {
	sheets, err := c.List()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, s := range sheets {
		if v := field(s); v != "" {
			set[v] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// SplitName splits a sheet name into task and staff. Known staff layouts
// are matched as suffixes; otherwise the last hyphenated word is the staff.
// A name without a hyphen is a task with no staff.
func SplitName(name string) (task, staff string) {
	for _, s := range KnownStaves {
		if t, ok := strings.CutSuffix(name, "-"+s); ok && t != "" {
			return t, s
		}
	}
	i := strings.LastIndex(name, "-")
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// Name joins a task and staff into a sheet name.
func Name(task, staff string) string {
	if staff == "" {
		return task
	}
	return task + "-" + staff
}
