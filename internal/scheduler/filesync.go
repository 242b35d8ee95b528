// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileSchedule is one entry of a declarative schedules file.
type fileSchedule struct {
	Cron   string `yaml:"cron"`
	Prompt string `yaml:"prompt"`
}

// schedulesFile is the YAML document shape.
type schedulesFile struct {
	Schedules []fileSchedule `yaml:"schedules"`
}

// FileSync keeps a scheduler in step with a declarative schedules file.
// The file is loaded once at start and re-synced whenever it changes on
// disk. Tasks added through the file are owned by the sync: a re-sync
// replaces them and leaves tasks scheduled through the RPC surface alone.
type FileSync struct {
	path      string
	scheduler *Scheduler
	logger    *slog.Logger
	watcher   *fsnotify.Watcher

	mu     sync.Mutex
	owned  []string // task ids created from the file
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFileSync creates a sync for the schedules file at path. A missing file
// is not an error; it simply yields no schedules until it appears.
func NewFileSync(path string, s *Scheduler, logger *slog.Logger) (*FileSync, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve schedules path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace the file on save, which would
	// drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch schedules dir: %w", err)
	}

	return &FileSync{
		path:      absPath,
		scheduler: s,
		logger:    logger.With(slog.String("component", "schedule-filesync")),
		watcher:   fsw,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start performs the initial load and begins watching for changes.
func (f *FileSync) Start() {
	f.resync()
	go f.eventLoop()
}

// Close stops the watcher. File-owned tasks stay scheduled.
func (f *FileSync) Close() {
	close(f.stopCh)
	<-f.doneCh
	_ = f.watcher.Close()
}

func (f *FileSync) eventLoop() {
	defer close(f.doneCh)

	for {
		select {
		case <-f.stopCh:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Name != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				f.resync()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("schedules watch error", slog.Any("error", err))
		}
	}
}

// resync replaces all file-owned tasks with the file's current contents.
func (f *FileSync) resync() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.owned {
		f.scheduler.Cancel(id)
	}
	f.owned = nil

	entries, err := loadSchedulesFile(f.path)
	if err != nil {
		f.logger.Warn("schedules file not loaded", slog.Any("error", err))
		return
	}

	for _, entry := range entries {
		task, err := f.scheduler.Add(entry.Cron, entry.Prompt)
		if err != nil {
			f.logger.Warn("skipping invalid schedule entry",
				slog.String("cron", entry.Cron), slog.Any("error", err))
			continue
		}
		f.owned = append(f.owned, task.ID)
	}
	f.logger.Info("schedules synced", slog.Int("count", len(f.owned)))
}

func loadSchedulesFile(path string) ([]fileSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var doc schedulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schedules file: %w", err)
	}
	return doc.Schedules, nil
}
