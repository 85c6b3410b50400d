package concat

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Plan is the echo/slice rearrangement of one scan: for every echo, a
// time-major grid of absolute file paths ready to be written as a Dimon
// input manifest.
type Plan struct {
	Echoes        int
	SpatialSlices int
	TimePoints    int

	// grid[echo][time][slice] is an absolute file path.
	grid [][][]string
}

// Manifest returns the time-major file grid for one echo.
func (p *Plan) Manifest(echo int) [][]string {
	return p.grid[echo]
}

// ManifestName is the on-disk name of the input list for one echo.
func ManifestName(echo int) string {
	return fmt.Sprintf("_me%d_infilelist", echo)
}

// InstanceNumber parses the scanner-assigned instance number out of a DICOM
// filename. pattern must carry exactly one capture group.
func InstanceNumber(pattern *regexp.Regexp, path string) (int, error) {
	m := pattern.FindStringSubmatch(filepath.Base(path))
	if len(m) < 2 {
		return 0, fmt.Errorf("filename %s does not match instance pattern %s", filepath.Base(path), pattern)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("instance number in %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

// Rearrange groups files by slice index, orders each group temporally by the
// filename instance number, and partitions the sorted distinct indices
// echo-major into contiguous runs. indices must be positionally aligned with
// files. Every file is assigned exactly once; any leftover or shortfall is a
// geometry error.
func Rearrange(files []string, indices []int, echoes int, instancePattern *regexp.Regexp) (*Plan, error) {
	if len(files) != len(indices) {
		return nil, fmt.Errorf("have %d files but %d slice indices", len(files), len(indices))
	}
	if err := CheckEchoDivisibility(len(files), echoes); err != nil {
		return nil, err
	}

	buckets := make(map[int][]string)
	for i, file := range files {
		buckets[indices[i]] = append(buckets[indices[i]], file)
	}

	distinct := make([]int, 0, len(buckets))
	for index := range buckets {
		distinct = append(distinct, index)
	}
	sort.Ints(distinct)

	if len(distinct)%echoes != 0 {
		return nil, geometryErrorf("%d distinct slice indices do not divide evenly across %d echoes",
			len(distinct), echoes)
	}
	spatial := len(distinct) / echoes
	if len(files)%(echoes*spatial) != 0 {
		return nil, geometryErrorf("%d files do not divide evenly into %d echoes of %d slices",
			len(files), echoes, spatial)
	}
	timePoints := len(files) / (echoes * spatial)

	// Temporal order within a slice position comes from the filename, not
	// from directory listing order.
	for index, bucket := range buckets {
		if len(bucket) != timePoints {
			return nil, geometryErrorf("slice index %d has %d files, expected %d time points",
				index, len(bucket), timePoints)
		}
		var sortErr error
		sort.Slice(bucket, func(i, j int) bool {
			a, err := InstanceNumber(instancePattern, bucket[i])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			b, err := InstanceNumber(instancePattern, bucket[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return a < b
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}

	plan := &Plan{
		Echoes:        echoes,
		SpatialSlices: spatial,
		TimePoints:    timePoints,
		grid:          make([][][]string, echoes),
	}
	for echo := 0; echo < echoes; echo++ {
		echoIndices := distinct[echo*spatial : (echo+1)*spatial]
		grid := make([][]string, timePoints)
		for t := 0; t < timePoints; t++ {
			row := make([]string, spatial)
			for x, index := range echoIndices {
				row[x] = buckets[index][t]
			}
			grid[t] = row
		}
		plan.grid[echo] = grid
	}
	return plan, nil
}

// WriteManifests writes one input list per echo into dir, one line per time
// point with space-joined absolute paths. Returns the manifest paths in echo
// order.
func (p *Plan) WriteManifests(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}

	paths := make([]string, 0, p.Echoes)
	for echo := 0; echo < p.Echoes; echo++ {
		var b strings.Builder
		for _, row := range p.grid[echo] {
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
		path := filepath.Join(dir, ManifestName(echo))
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return nil, fmt.Errorf("write manifest for echo %d: %w", echo, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
