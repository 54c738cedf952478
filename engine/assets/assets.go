package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/quartz/engine/core"
)

const (
	shaderExtension     = ".spv"
	reflectionExtension = ".spv.toml"
)

var ErrWatcherClosed = errors.New("shader watcher already closed")

/**
 * @brief Watches a shader directory and fires EVENT_CODE_SHADER_CHANGED with the shader name
 * whenever its bytecode or reflection sidecar is written.
 */
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}

	mutex    sync.Mutex
	isClosed bool
	started  bool
	// Last known modification time per shader file.
	shaders map[string]int64
}

func NewShaderWatcher() (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	return &ShaderWatcher{
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		shaders:  make(map[string]int64),
	}, nil
}

// Watch starts watching shaderDir and all its sub-directories.
func (sw *ShaderWatcher) Watch(shaderDir string) error {
	if err := sw.addRecursive(shaderDir); err != nil {
		return err
	}
	sw.mutex.Lock()
	if !sw.started {
		sw.started = true
		go sw.start()
	}
	sw.mutex.Unlock()
	core.LogInfo("watching shaders in %s", shaderDir)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (sw *ShaderWatcher) Close() error {
	sw.mutex.Lock()
	if sw.isClosed {
		sw.mutex.Unlock()
		return ErrWatcherClosed
	}
	sw.isClosed = true
	started := sw.started
	sw.mutex.Unlock()

	if !started {
		return sw.fsnotify.Close()
	}
	close(sw.done)
	<-sw.stopped
	return nil
}

// Shaders returns the shader files seen so far.
func (sw *ShaderWatcher) Shaders() []string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	out := make([]string, 0, len(sw.shaders))
	for path := range sw.shaders {
		out = append(out, path)
	}
	return out
}

// addRecursive starts watching the named directory and all sub-directories.
func (sw *ShaderWatcher) addRecursive(name string) error {
	sw.mutex.Lock()
	closed := sw.isClosed
	sw.mutex.Unlock()
	if closed {
		return ErrWatcherClosed
	}
	return sw.watchRecursive(name, false)
}

func (sw *ShaderWatcher) start() {
	defer close(sw.stopped)
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := sw.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %v", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.handleFileEvent(e.Name)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				sw.removeShader(e.Name)
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %v", err)

		case <-sw.done:
			sw.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (sw *ShaderWatcher) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			if shaderName(walkPath) != "" {
				sw.track(walkPath, fi.ModTime().UnixNano())
			}
			return nil
		}
		if unWatch {
			return sw.fsnotify.Remove(walkPath)
		}
		return sw.fsnotify.Add(walkPath)
	})
}

func (sw *ShaderWatcher) track(path string, modTime int64) bool {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if previous, ok := sw.shaders[path]; ok && previous == modTime {
		return false
	}
	sw.shaders[path] = modTime
	return true
}

// Handle the creation or modification of a file
func (sw *ShaderWatcher) handleFileEvent(path string) {
	name := shaderName(path)
	if name == "" {
		return
	}
	var modTime int64
	if s, err := os.Stat(path); err == nil {
		modTime = s.ModTime().UnixNano()
	}
	sw.track(path, modTime)

	core.LogDebug("shader %s changed on disk", name)
	context := core.EventContext{}
	context.Data.S = name
	core.EventFire(core.EVENT_CODE_SHADER_CHANGED, sw, context)
}

func (sw *ShaderWatcher) removeShader(path string) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	delete(sw.shaders, path)
}

// shaderName returns "pathtrace.rgen" for "shaders/pathtrace.rgen.spv" and its sidecar, and "" for anything else.
func shaderName(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, reflectionExtension):
		return strings.TrimSuffix(base, reflectionExtension)
	case strings.HasSuffix(base, shaderExtension):
		return strings.TrimSuffix(base, shaderExtension)
	default:
		return ""
	}
}
