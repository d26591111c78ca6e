package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/nsg/camon/internal/config"
)

// warmFile is one file discovered under a camera's movements/objects
// directories, tracked so the janitor can evict the oldest first.
type warmFile struct {
	path    string
	size    int64
	modTime int64
}

// Janitor periodically enforces the configured warm-storage size budget by
// deleting the oldest warm event files once usage exceeds it, and logs disk
// usage for the storage volume.
type Janitor struct {
	logger  *slog.Logger
	storage config.StorageConfig
	cron    *cron.Cron
}

// NewJanitor creates a Janitor. It does nothing until Start is called.
func NewJanitor(logger *slog.Logger, storage config.StorageConfig) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		logger:  logger,
		storage: storage,
		cron:    cron.New(),
	}
}

// Start schedules the enforcement sweep to run every 15 minutes and runs one
// sweep immediately.
func (j *Janitor) Start() error {
	j.sweep()
	_, err := j.cron.AddFunc("@every 15m", j.sweep)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop cancels future sweeps and waits for any sweep in progress to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweep() {
	usage, err := disk.Usage(j.storage.DataDir)
	if err != nil {
		j.logger.Warn("reading disk usage failed", "data_dir", j.storage.DataDir, "error", err)
	} else {
		j.logger.Debug("disk usage",
			"data_dir", j.storage.DataDir,
			"used_percent", usage.UsedPercent,
			"free_bytes", usage.Free)
	}

	if j.storage.MaxWarmSize <= 0 {
		return
	}

	files, total, err := j.scanWarmFiles()
	if err != nil {
		j.logger.Warn("scanning warm storage failed", "error", err)
		return
	}

	budget := j.storage.MaxWarmSize.Bytes()
	if total <= budget {
		return
	}

	sort.Slice(files, func(i, k int) bool { return files[i].modTime < files[k].modTime })

	evicted := 0
	for _, f := range files {
		if total <= budget {
			break
		}
		if err := os.Remove(f.path); err != nil {
			j.logger.Warn("evicting warm file failed", "path", f.path, "error", err)
			continue
		}
		total -= f.size
		evicted++
	}
	if evicted > 0 {
		j.logger.Info("evicted warm storage files over budget", "count", evicted, "data_dir", j.storage.DataDir)
	}
}

func (j *Janitor) scanWarmFiles() ([]warmFile, int64, error) {
	var files []warmFile
	var total int64

	err := filepath.WalkDir(j.storage.DataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole sweep
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".ts" && ext != ".h264" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, warmFile{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}
