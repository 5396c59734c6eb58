// Package georef reads the departements/regions reference file fetched by the
// pipeline and answers department to region lookups.
package georef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
)

// Departement is one entry of the reference file.
type Departement struct {
	Code   string `json:"num_dep"`
	Name   string `json:"dep_name"`
	Region string `json:"region_name"`
}

// UnmarshalJSON accepts num_dep as a string ("2A", "01") or a number (1),
// padding numbers to two digits.
func (d *Departement) UnmarshalJSON(b []byte) error {
	var raw struct {
		Code   json.RawMessage `json:"num_dep"`
		Name   string          `json:"dep_name"`
		Region string          `json:"region_name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	code, err := decodeCode(raw.Code)
	if err != nil {
		return err
	}
	*d = Departement{Code: code, Name: raw.Name, Region: raw.Region}
	return nil
}

func decodeCode(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return "", errors.New("georef: num_dep is missing")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", fmt.Errorf("georef: num_dep: %w", err)
		}
		return s, nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return "", fmt.Errorf("georef: num_dep %s: %w", b, err)
	}
	return fmt.Sprintf("%02d", n), nil
}

// NormalizeCode pads a one-digit department code to two digits. Other codes
// are returned unchanged.
func NormalizeCode(code string) string {
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return "0" + code
	}
	return code
}

// Index is an immutable view of the reference file.
type Index struct {
	deps     []Departement
	byCode   map[string]Departement
	byRegion map[string][]string
}

// Parse decodes the reference JSON array.
func Parse(r io.Reader) (*Index, error) {
	var deps []Departement
	if err := json.NewDecoder(r).Decode(&deps); err != nil {
		return nil, fmt.Errorf("georef: decode: %w", err)
	}
	idx := &Index{
		deps:     deps,
		byCode:   make(map[string]Departement, len(deps)),
		byRegion: map[string][]string{},
	}
	for _, d := range deps {
		idx.byCode[d.Code] = d
		idx.byRegion[d.Region] = append(idx.byRegion[d.Region], d.Code)
	}
	return idx, nil
}

// Load parses the file at path. A missing file yields an error wrapping
// os.ErrNotExist.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("georef: %s is missing, run the initialization to download it: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Departements returns the entries in file order.
func (x *Index) Departements() []Departement {
	return append([]Departement(nil), x.deps...)
}

// RegionOf returns the region name of a department code.
func (x *Index) RegionOf(code string) (string, bool) {
	d, ok := x.byCode[NormalizeCode(code)]
	return d.Region, ok
}

// DeptToRegion returns code → region name.
func (x *Index) DeptToRegion() map[string]string {
	out := make(map[string]string, len(x.byCode))
	for c, d := range x.byCode {
		out[c] = d.Region
	}
	return out
}

// RegionDepartements returns region name → department codes in file order.
func (x *Index) RegionDepartements() map[string][]string {
	out := make(map[string][]string, len(x.byRegion))
	for r, codes := range x.byRegion {
		out[r] = append([]string(nil), codes...)
	}
	return out
}

// Regions returns the distinct region names, sorted.
func (x *Index) Regions() []string {
	out := make([]string, 0, len(x.byRegion))
	for r := range x.byRegion {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Lazy loads the file on first successful Get and keeps the result. Failed
// loads are retried on the next call, since the file appears only after the
// pipeline has run.
type Lazy struct {
	Path string

	mu  sync.Mutex
	idx *Index
}

// Get returns the cached index, loading it if needed.
func (l *Lazy) Get() (*Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idx != nil {
		return l.idx, nil
	}
	idx, err := Load(l.Path)
	if err != nil {
		return nil, err
	}
	l.idx = idx
	return idx, nil
}
