package dimon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mepipe/internal/audit"
	"mepipe/internal/logging"
	"mepipe/internal/services"
)

// Request describes one per-echo reconstruction.
type Request struct {
	// ScanNumber is the numeric scan identifier used in output naming.
	ScanNumber int
	// Echo is the zero-based echo index.
	Echo int
	// Manifest is the absolute path of the input file list for this echo.
	Manifest string
	// OutputDir is the directory (the scan's medata subdirectory) that
	// receives the GERT script and the NIFTI output.
	OutputDir string
}

// Reconstructor defines the behaviour the workflow needs from the Dimon
// wrapper.
type Reconstructor interface {
	Reconstruct(ctx context.Context, req Request) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithOutputTemplate overrides the to3d prefix template. The template takes
// the scan number and echo index, in that order; empty keeps the default.
func WithOutputTemplate(template string) Option {
	return func(c *Client) {
		if strings.TrimSpace(template) != "" {
			c.outputTemplate = template
		}
	}
}

// Client wraps invocations of the AFNI Dimon binary.
type Client struct {
	binary         string
	timeout        time.Duration
	outputTemplate string
	exec           Executor
	logger         *slog.Logger
}

// New constructs a Dimon client. timeoutSeconds of zero means no timeout.
func New(binary string, timeoutSeconds int, logger *slog.Logger, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("dimon binary required")
	}
	client := &Client{
		binary:         binary,
		timeout:        time.Duration(timeoutSeconds) * time.Second,
		outputTemplate: audit.DefaultOutputTemplate,
		exec:           commandExecutor{},
		logger:         logging.WithComponent(logger, "dimon"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Reconstruct runs Dimon for one echo. Dimon writes scratch files into its
// working directory, so each echo gets a throwaway directory under OutputDir
// that is removed whether or not the run succeeds.
func (c *Client) Reconstruct(ctx context.Context, req Request) error {
	if req.Manifest == "" {
		return services.Wrap(services.ErrValidation, "dimon", "reconstruct", "manifest path required", nil)
	}
	if req.OutputDir == "" {
		return services.Wrap(services.ErrValidation, "dimon", "reconstruct", "output directory required", nil)
	}

	workDir := filepath.Join(req.OutputDir, fmt.Sprintf("temp_%d", req.Echo))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create dimon working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"-infile_list", req.Manifest,
		"-GERT_Reco",
		"-gert_filename", fmt.Sprintf("GERT_Reco_dicom_%03d_e%02d", req.ScanNumber, req.Echo),
		"-gert_create_dataset",
		"-gert_outdir", req.OutputDir,
		"-gert_to3d_prefix", fmt.Sprintf(c.outputTemplate, req.ScanNumber, req.Echo),
		"-gert_write_as_nifti",
		"-quit",
	}

	logger := c.logger.With(slog.Int(logging.FieldEcho, req.Echo))
	logger.Debug("invoking dimon", slog.String("manifest", filepath.Base(req.Manifest)))

	err := c.exec.Run(runCtx, workDir, c.binary, args, func(line string) {
		logger.Debug("dimon output", slog.String("line", line))
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "dimon", "reconstruct",
				fmt.Sprintf("echo %d exceeded %s", req.Echo, c.timeout), err)
		}
		return services.Wrap(services.ErrExternalTool, "dimon", "reconstruct",
			fmt.Sprintf("echo %d", req.Echo), err)
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return err
	}
	return scanErr
}
