package models

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tasknlp/internal/logger"
)

var (
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrMalformedChecksum = errors.New("malformed checksum")
	ErrUnsafeArchive     = errors.New("unsafe archive entry")
)

const checksumFile = ".checksum"

type Progress struct {
	Downloaded int64
	Total      int64
	SpeedMBps  float64
	ETA        time.Duration
}

type ProgressCallback func(Progress)

// Downloader fetches model archives and installs them under a models root.
// Installs are serialized.
type Downloader struct {
	Client *retryablehttp.Client

	mu sync.Mutex
}

func NewDownloader() *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 0
	client.Logger = logger.NewLeveledLogrus(logger.GetLogger())
	return &Downloader{Client: client}
}

// ParseChecksum returns the hex digest of a "sha256:<hex>" pin. An empty pin
// yields an empty digest: the release has not published one.
func ParseChecksum(pin string) (string, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", nil
	}
	digest, ok := strings.CutPrefix(pin, "sha256:")
	if !ok {
		return "", fmt.Errorf("%w %q: want sha256:<hex>", ErrMalformedChecksum, pin)
	}
	if raw, err := hex.DecodeString(digest); err != nil || len(raw) != sha256.Size {
		return "", fmt.Errorf("%w %q: want %d hex bytes", ErrMalformedChecksum, pin, sha256.Size)
	}
	return strings.ToLower(digest), nil
}

// DownloadAndInstall fetches model, checks it against its pinned checksum and
// swaps it into <modelsRoot>/<name>. Models without a published checksum are
// installed unverified with a warning; the digest actually received is
// recorded next to the files either way.
func (d *Downloader) DownloadAndInstall(ctx context.Context, model ModelSpec, modelsRoot string, onProgress ProgressCallback) error {
	want, err := ParseChecksum(model.Checksum)
	if err != nil {
		return fmt.Errorf("%s: %w", model.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(modelsRoot, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(modelsRoot, model.Name+"-download-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	archivePath := filepath.Join(staging, model.Name+".tar.gz")
	got, err := d.fetch(ctx, model.URL, archivePath, onProgress)
	if err != nil {
		return fmt.Errorf("download %s: %w", model.Name, err)
	}
	switch {
	case want == "":
		log.Warnf("model %s has no published checksum, installing unverified archive sha256:%s", model.Name, got)
	case got != want:
		return fmt.Errorf("%w for %s: expected sha256:%s, got sha256:%s", ErrChecksumMismatch, model.Name, want, got)
	}

	extracted := filepath.Join(staging, "extract")
	if err := ExtractTarGz(archivePath, extracted); err != nil {
		return fmt.Errorf("extract %s: %w", model.Name, err)
	}
	modelDir, err := LocateModelDir(extracted, model.Kind)
	if err != nil {
		return fmt.Errorf("%s: %w", model.Name, err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, checksumFile), []byte("sha256:"+got+"\n"), 0o644); err != nil {
		return err
	}
	return swapInto(modelDir, ModelInstallPath(modelsRoot, model.Name))
}

// fetch streams url into dest and returns the sha256 of what it wrote.
func (d *Downloader) fetch(ctx context.Context, url, dest string, onProgress ProgressCallback) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	meter := &progressMeter{total: resp.ContentLength, start: time.Now(), report: onProgress}
	if _, err := io.Copy(io.MultiWriter(out, h, meter), resp.Body); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type progressMeter struct {
	total  int64
	done   int64
	start  time.Time
	report ProgressCallback
}

func (m *progressMeter) Write(p []byte) (int, error) {
	m.done += int64(len(p))
	if m.report == nil {
		return len(p), nil
	}
	const mb = 1024 * 1024
	pr := Progress{Downloaded: m.done, Total: m.total}
	if elapsed := time.Since(m.start).Seconds(); elapsed > 0 {
		pr.SpeedMBps = float64(m.done) / mb / elapsed
	}
	if m.total > 0 && pr.SpeedMBps > 0 {
		pr.ETA = time.Duration(float64(m.total-m.done) / mb / pr.SpeedMBps * float64(time.Second))
	}
	m.report(pr)
	return len(p), nil
}

// swapInto replaces final with dir, restoring the previous install if the
// rename fails.
func swapInto(dir, final string) error {
	backup := final + ".bak"
	_ = os.RemoveAll(backup)
	hadPrevious := false
	if _, err := os.Stat(final); err == nil {
		if err := os.Rename(final, backup); err != nil {
			return err
		}
		hadPrevious = true
	}
	if err := os.Rename(dir, final); err != nil {
		if hadPrevious {
			_ = os.Rename(backup, final)
		}
		return err
	}
	return os.RemoveAll(backup)
}

// VerifyChecksum hashes file and compares it with the pin. An unpublished pin
// is an error here: callers verifying an install need something to compare.
func VerifyChecksum(file, pin string) error {
	want, err := ParseChecksum(pin)
	if err != nil {
		return err
	}
	if want == "" {
		return fmt.Errorf("%w: no checksum to verify against", ErrMalformedChecksum)
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return fmt.Errorf("%w: expected sha256:%s, got sha256:%s", ErrChecksumMismatch, want, got)
	}
	return nil
}

// InstalledChecksum reads the digest recorded at install time.
func InstalledChecksum(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, checksumFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ExtractTarGz unpacks regular files and directories into dest. Entries that
// would land outside dest fail the whole extraction; links and devices are
// ignored.
func ExtractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	root := filepath.Clean(dest)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(root, hdr.Name)
		if target == root {
			continue
		}
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			err = writeEntry(target, tr)
		}
		if err != nil {
			return err
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ValidateModelDir reports the files kind requires that dir lacks.
func ValidateModelDir(dir string, kind Kind) error {
	var missing []string
	for _, file := range RequiredFiles(kind) {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			missing = append(missing, file)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid model directory: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// LocateModelDir finds the directory of an extracted archive that holds the
// files kind requires: base itself, or the one directory the archive wrapped
// them in.
func LocateModelDir(base string, kind Kind) (string, error) {
	err := ValidateModelDir(base, kind)
	if err == nil {
		return base, nil
	}
	entries, rerr := os.ReadDir(base)
	if rerr != nil {
		return "", rerr
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}
	if len(dirs) != 1 {
		return "", err
	}
	if nerr := ValidateModelDir(dirs[0], kind); nerr != nil {
		return "", nerr
	}
	return dirs[0], nil
}
