package pull

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mepipe/internal/fileutil"
	"mepipe/internal/logging"
)

// auxDirName is the subject subdirectory that receives auxiliary files
// before organization.
const auxDirName = "auxiliary_files"

// fetchAuxFiles downloads the experiment's auxiliary files, extracts the ones
// matching the unzip globs, and organizes files naming a scan number into the
// matching scan directory. Returns how many files were organized.
func (p *Puller) fetchAuxFiles(ctx context.Context, logger *slog.Logger, subject, experiment, subjectDir string, opts Options) (int, error) {
	aux := opts.Aux
	if aux.Label == "" || len(aux.FetchGlobs) == 0 {
		return 0, nil
	}

	files, err := p.api.ExperimentResourceFiles(ctx, opts.Project, subject, experiment, aux.Label)
	if err != nil {
		return 0, fmt.Errorf("list auxiliary files: %w", err)
	}

	auxDir := filepath.Join(subjectDir, auxDirName)
	if err := os.MkdirAll(auxDir, 0o755); err != nil {
		return 0, fmt.Errorf("create auxiliary directory: %w", err)
	}

	for _, file := range files {
		if !matchesAny(file.Name, aux.FetchGlobs) {
			continue
		}
		dest := filepath.Join(auxDir, file.Name)
		if _, err := os.Stat(dest); err == nil {
			logger.Debug("auxiliary file already present", slog.String("file", file.Name))
		} else {
			logger.Info("fetching auxiliary file", slog.String("file", file.Name))
			if err := p.api.DownloadFile(ctx, file.URI, dest); err != nil {
				logger.Error("auxiliary fetch failed", slog.String("file", file.Name), logging.Error(err))
				continue
			}
		}

		if matchesAny(file.Name, aux.UnzipGlobs) {
			if err := p.unzipAux(logger, dest, auxDir); err != nil {
				logger.Error("auxiliary unzip failed", slog.String("file", file.Name), logging.Error(err))
			}
		}
	}

	return p.organizeAux(logger, subjectDir, auxDir, aux)
}

// unzipAux extracts one archive into a sibling directory named after the
// archive stem and removes the archive on success.
func (p *Puller) unzipAux(logger *slog.Logger, archive, auxDir string) error {
	stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	dest := filepath.Join(auxDir, stem)
	if _, err := os.Stat(dest); err == nil {
		logger.Debug("auxiliary archive already extracted", slog.String("dir", dest))
		return nil
	}
	if _, err := fileutil.ExtractZip(archive, dest, false); err != nil {
		return err
	}
	return os.Remove(archive)
}

// organizeAux copies or moves any auxiliary file whose name carries a scan
// number into that scan's directory.
func (p *Puller) organizeAux(logger *slog.Logger, subjectDir, auxDir string, aux AuxOptions) (int, error) {
	if aux.OrganizeRegex == "" {
		return 0, nil
	}
	pattern, err := regexp.Compile(aux.OrganizeRegex)
	if err != nil {
		return 0, fmt.Errorf("organize regex: %w", err)
	}

	organized := 0
	walkErr := filepath.WalkDir(auxDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		base := filepath.Base(path)
		m := pattern.FindStringSubmatch(base)
		if len(m) < 2 {
			return nil
		}
		scanDir := filepath.Join(subjectDir, m[1])
		if err := os.MkdirAll(scanDir, 0o755); err != nil {
			return fmt.Errorf("create scan directory for auxiliary file: %w", err)
		}
		target := filepath.Join(scanDir, base)
		if aux.RetainOriginals {
			if err := fileutil.CopyFile(path, target); err != nil {
				logger.Error("failed to copy auxiliary file",
					slog.String("file", base), logging.Error(err))
				return nil
			}
		} else {
			if err := os.Rename(path, target); err != nil {
				logger.Error("failed to move auxiliary file",
					slog.String("file", base), logging.Error(err))
				return nil
			}
		}
		organized++
		return nil
	})
	if walkErr != nil {
		return organized, fmt.Errorf("walk auxiliary files: %w", walkErr)
	}
	logger.Info("organized auxiliary files", slog.Int("count", organized))
	return organized, nil
}

func matchesAny(name string, globs []string) bool {
	for _, pattern := range globs {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
