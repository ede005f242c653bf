package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tasknlp/internal/models"
	"tasknlp/internal/tokenize"
)

func newModelCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "model",
		Short: "Manage installed models",
	}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registry models and their install status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			return modelList(cmd.OutOrStdout(), registry, cfg.Models.Root)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "info <name>",
		Short: "Show details of one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			return modelInfo(cmd.OutOrStdout(), registry, cfg.Models.Root, args[0])
		},
	})

	var all bool
	download := &cobra.Command{
		Use:   "download [name]",
		Short: "Download and install a model, or every recommended model with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			selected, err := selectModels(registry, args, all)
			if err != nil {
				return err
			}
			return modelDownload(cmd, models.NewDownloader(), selected, cfg.Models.Root)
		},
	}
	download.Flags().BoolVar(&all, "all", false, "download all recommended models")
	c.AddCommand(download)

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an installed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			return modelRemove(cmd.InOrStdin(), cmd.OutOrStdout(), registry, cfg.Models.Root, args[0], yes)
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	c.AddCommand(remove)

	c.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check installed models against the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			return modelVerify(cmd.OutOrStdout(), registry, cfg.Models.Root)
		},
	})
	return c
}

func modelList(out io.Writer, registry models.Registry, root string) error {
	fmt.Fprintln(out, "Available Models")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "%-16s %-24s %-6s %-8s %-14s\n", "NAME", "KIND", "LANG", "SIZE", "STATUS")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	installed := 0
	var totalSize int64
	for _, m := range registry.Models {
		status := "not installed"
		if models.IsInstalled(root, m) {
			status = "installed"
			installed++
			totalSize += m.SizeBytes
		}
		fmt.Fprintf(out, "%-16s %-24s %-6s %-8s %-14s\n", m.Name, m.Kind, m.Language, humanBytes(m.SizeBytes), status)
	}
	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "Installed: %d/%d models\n", installed, len(registry.Models))
	fmt.Fprintf(out, "Total size: %s\n", humanBytes(totalSize))
	fmt.Fprintln(out, "\nTip: Use 'tasknlp model download <name>' to install a model")
	return nil
}

func modelInfo(out io.Writer, registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrModelNotFound, name)
	}
	status := "Not installed"
	if models.IsInstalled(root, m) {
		status = "Installed"
	}
	fmt.Fprintf(out, "Model: %s\n", m.Name)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "Status:         %s\n", status)
	fmt.Fprintf(out, "Kind:           %s\n", m.Kind)
	fmt.Fprintf(out, "Version:        %s\n", m.Version)
	fmt.Fprintf(out, "Language:       %s\n", m.Language)
	fmt.Fprintf(out, "Size:           %s\n", humanBytes(m.SizeBytes))
	fmt.Fprintf(out, "Location:       %s\n", models.ModelInstallPath(root, m.Name))
	fmt.Fprintf(out, "Description:    %s\n", m.Description)
	if len(m.Labels) > 0 {
		fmt.Fprintf(out, "Labels:         %s\n", strings.Join(m.Labels, ", "))
	}
	if m.Baseline {
		fmt.Fprintln(out, "Baseline:       yes")
	}
	fmt.Fprintf(out, "Architecture:   %s\n", m.Architecture)
	fmt.Fprintf(out, "License:        %s\n", m.License)
	fmt.Fprintf(out, "URL:            %s\n", m.URL)
	fmt.Fprintf(out, "Checksum:       %s\n", m.Checksum)
	return nil
}

func selectModels(registry models.Registry, args []string, all bool) ([]models.ModelSpec, error) {
	if all {
		selected := make([]models.ModelSpec, 0)
		for _, m := range registry.Models {
			if m.Recommended {
				selected = append(selected, m)
			}
		}
		return selected, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: tasknlp model download <name> or tasknlp model download --all")
	}
	m, ok := registry.Find(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrModelNotFound, args[0])
	}
	return []models.ModelSpec{m}, nil
}

func modelDownload(cmd *cobra.Command, dl *models.Downloader, selected []models.ModelSpec, root string) error {
	out := cmd.OutOrStdout()
	for _, m := range selected {
		fmt.Fprintf(out, "\nDownloading %s v%s\n", m.Name, m.Version)
		fmt.Fprintf(out, "Source: %s\n\n", m.URL)
		lastUpdate := time.Time{}
		err := dl.DownloadAndInstall(cmd.Context(), m, root, func(p models.Progress) {
			if time.Since(lastUpdate) < 120*time.Millisecond && p.Total > 0 {
				return
			}
			lastUpdate = time.Now()
			pct := float64(0)
			if p.Total > 0 {
				pct = float64(p.Downloaded) * 100 / float64(p.Total)
			}
			fmt.Fprintf(out, "\rDownloading... %6.2f%% | %s / %s | %.2f MB/s | ETA %s", pct, humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedMBps, p.ETA.Truncate(time.Second))
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		if m.Checksum == "" {
			fmt.Fprintln(out, "Verifying checksum... skipped (none published)")
		} else {
			fmt.Fprintln(out, "Verifying checksum... ✓")
		}
		fmt.Fprintln(out, "Extracting... ✓")
		if err := validateModelLoads(models.ModelInstallPath(root, m.Name), m.Kind); err != nil {
			return fmt.Errorf("validate model: %w", err)
		}
		fmt.Fprintln(out, "Validating model... ✓")
		fmt.Fprintf(out, "\n✓ Model %s installed successfully\n", m.Name)
	}
	return nil
}

// validateModelLoads parses what the service would load for kind without
// starting an inference session.
func validateModelLoads(modelDir string, kind models.Kind) error {
	if kind != models.KindTokenClassification && kind != models.KindSequenceClassification {
		if _, err := tokenize.Load(filepath.Join(modelDir, "tokenizer.json"), 0); err != nil {
			return err
		}
	}
	if kind == models.KindTokenizer {
		return nil
	}
	labels, err := models.LoadLabels(modelDir)
	if err != nil {
		return err
	}
	if len(labels) == 0 && kind != models.KindBundle {
		return fmt.Errorf("no labels in labels.json or config.json")
	}
	return nil
}

func modelRemove(in io.Reader, out io.Writer, registry models.Registry, root, name string, yes bool) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrModelNotFound, name)
	}
	loc := models.ModelInstallPath(root, m.Name)
	if _, err := os.Stat(loc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(out, "Model %s is not installed\n", name)
			return nil
		}
		return err
	}
	if !yes {
		fmt.Fprintf(out, "Remove model '%s' (%s)?\n", m.Name, humanBytes(m.SizeBytes))
		fmt.Fprintf(out, "This will delete %s\n\n", loc)
		fmt.Fprint(out, "Continue? (y/N): ")
		resp, _ := bufio.NewReader(in).ReadString('\n')
		resp = strings.TrimSpace(strings.ToLower(resp))
		if resp != "y" && resp != "yes" {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}
	if err := os.RemoveAll(loc); err != nil {
		return err
	}
	fmt.Fprintln(out, "Removing model... ✓")
	fmt.Fprintf(out, "Model %s removed successfully\n", m.Name)
	return nil
}

func modelVerify(out io.Writer, registry models.Registry, root string) error {
	fmt.Fprintln(out, "Verifying installed models...")
	installed := 0
	failures := 0
	for _, m := range registry.Models {
		if !models.IsInstalled(root, m) {
			continue
		}
		installed++
		fmt.Fprintf(out, "\n%s\n", m.Name)
		dir := models.ModelInstallPath(root, m.Name)
		switch sum, err := models.InstalledChecksum(dir); {
		case err != nil:
			fmt.Fprintln(out, "  ├─ Checksum... ? (metadata unavailable)")
		case m.Checksum == "":
			fmt.Fprintf(out, "  ├─ Checksum... ? (none published, installed %s)\n", sum)
		case sum == m.Checksum:
			fmt.Fprintln(out, "  ├─ Checksum... ✓")
		default:
			fmt.Fprintln(out, "  ├─ Checksum... ✗ (registry mismatch)")
			failures++
		}
		if err := models.ValidateModelDir(dir, m.Kind); err != nil {
			fmt.Fprintf(out, "  ├─ Files...    ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(out, "  ├─ Files...    ✓")
		if err := validateModelLoads(dir, m.Kind); err != nil {
			fmt.Fprintf(out, "  └─ Loadable... ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(out, "  └─ Loadable... ✓")
	}
	if installed == 0 {
		fmt.Fprintln(out, "\nNo installed models found")
		return nil
	}
	if failures > 0 {
		return fmt.Errorf("%d model(s) failed verification", failures)
	}
	fmt.Fprintln(out, "\nAll models verified")
	return nil
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
