// Copyright © 2020 Jose Riguera <jriguera@gmail.com>
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
//
package tar

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "serverless/internal/log"
	glob "serverless/pkg/glob"
)

// Tar builds an archive from folders of the local filesystem
type Tar struct {
	BasePath string
	Skip     *glob.Glob
	Include  *glob.Glob
	srcPath  string
	dstPath  string
	files    int
	file     *os.File
	ctx      context.Context
	tw       *tar.Writer
	mu       sync.Mutex
	log      log.Logger
}

func NewTar(basepath string, l log.Logger, outputs ...io.Writer) *Tar {
	var mw io.Writer = io.Discard
	if len(outputs) > 0 {
		mw = io.MultiWriter(outputs...)
	}
	return &Tar{
		BasePath: basepath,
		tw:       tar.NewWriter(mw),
		log:      l,
	}
}

// NewTarFile creates the archive file, with its parent folders
func NewTarFile(tarfile string, l log.Logger) (*Tar, error) {
	if err := os.MkdirAll(filepath.Dir(tarfile), 0755); err != nil {
		return nil, err
	}
	target, err := os.Create(tarfile)
	if err != nil {
		return nil, err
	}
	t := NewTar(".", l, target)
	t.file = target
	return t, nil
}

func (t *Tar) Close() error {
	err := t.tw.Close()
	if t.file != nil {
		if ferr := t.file.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// Files returns the number of files added so far
func (t *Tar) Files() int {
	return t.files
}

// Option to pass to the using Functional Options
type Option func(*Tar) error

// Skip excludes files and folders matching any of the patterns
func Skip(patterns ...string) Option {
	return func(t *Tar) error {
		if len(patterns) == 0 {
			return nil
		}
		g, err := glob.New(patterns...)
		if err != nil {
			return fmt.Errorf("Invalid skip glob pattern '%s', %s", strings.Join(patterns, ","), err.Error())
		}
		t.Skip = g
		return nil
	}
}

// Include only adds the files matching any of the patterns
func Include(patterns ...string) Option {
	return func(t *Tar) error {
		if len(patterns) == 0 {
			return nil
		}
		g, err := glob.New(patterns...)
		if err != nil {
			return fmt.Errorf("Invalid include glob pattern '%s', %s", strings.Join(patterns, ","), err.Error())
		}
		t.Include = g
		return nil
	}
}

// Add walks src and adds its contents under dstpath in the archive
func (t *Tar) Add(ctx context.Context, src, dstpath string, opts ...Option) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctx = ctx
	t.srcPath = filepath.Clean(src)
	t.dstPath = "."
	if dstpath != "" {
		t.dstPath = dstpath
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			t.log.Error(err)
			return err
		}
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return filepath.Walk(t.srcPath, t.scan)
}

func (t *Tar) scan(p string, i os.FileInfo, err error) error {
	if err != nil {
		err = fmt.Errorf("Cannot scan path for tar, %s", err.Error())
		t.log.Error(err)
		return err
	}
	rel, _ := filepath.Rel(t.srcPath, p)
	if rel == "." {
		return nil
	}
	if i.IsDir() {
		if t.Skip != nil && t.Skip.MatchString(rel) {
			t.log.Debugf("Skipping folder due to glob '%s': %s", t.Skip.String(), rel)
			return filepath.SkipDir
		}
	} else if i.Mode().IsRegular() {
		if t.Skip != nil && t.Skip.MatchString(rel) {
			t.log.Debugf("Skipping file due to glob '%s': %s", t.Skip.String(), rel)
			return nil
		}
		if t.Include != nil && !t.Include.MatchString(rel) {
			t.log.Debugf("Skipping file due to not matching glob '%s': %s", t.Include.String(), rel)
			return nil
		}
	} else {
		t.log.Debugf("Skipping non regular file: %s", rel)
		return nil
	}
	select {
	case <-t.ctx.Done():
		err = fmt.Errorf("Cancelled by context")
		t.log.Error(err)
		return err
	default:
		return t.tarFile(p, rel, i)
	}
}

func (t *Tar) tarFile(path, rel string, i os.FileInfo) error {
	header, err := tar.FileInfoHeader(i, i.Name())
	if err != nil {
		err = fmt.Errorf("Cannot get tar header for file '%s': %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	header.Name = filepath.ToSlash(filepath.Join(t.BasePath, t.dstPath, rel))
	if i.IsDir() {
		header.Name += "/"
	}
	if err := t.tw.WriteHeader(header); err != nil {
		err = fmt.Errorf("Cannot store tar header for file '%s': %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	if i.IsDir() {
		t.log.Debugf("Adding directory '%s'", rel)
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("Cannot open file '%s': %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	defer file.Close()
	bytes, err := io.Copy(t.tw, file)
	if err != nil {
		err = fmt.Errorf("Cannot tar file '%s': %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	t.files++
	t.log.Debugf("Tar file '%s': %d bytes", rel, bytes)
	return nil
}

// UnTar extracts an archive into BasePath
func (t *Tar) UnTar(ctx context.Context, reader io.Reader) error {
	tarReader := tar.NewReader(reader)
	for {
		select {
		case <-ctx.Done():
			err := fmt.Errorf("Cancelled by context")
			t.log.Error(err)
			return err
		default:
		}
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			err = fmt.Errorf("Cannot untar: %s", err.Error())
			t.log.Error(err)
			return err
		}
		path := filepath.Join(t.BasePath, header.Name)
		if !strings.HasPrefix(path, filepath.Clean(t.BasePath)+string(os.PathSeparator)) {
			err = fmt.Errorf("Cannot untar '%s': path outside of '%s'", header.Name, t.BasePath)
			t.log.Error(err)
			return err
		}
		info := header.FileInfo()
		if info.IsDir() {
			if err = os.MkdirAll(path, info.Mode()); err != nil {
				err = fmt.Errorf("Cannot create directory '%s' with mode '%s': %s", path, info.Mode().String(), err.Error())
				t.log.Error(err)
				return err
			}
			t.log.Debugf("Created folder '%s' with mode '%s'", path, info.Mode().String())
			continue
		}
		if err := t.extract(path, info.Mode(), tarReader); err != nil {
			return err
		}
	}
}

func (t *Tar) extract(path string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		err = fmt.Errorf("Cannot open '%s' for writing: %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	defer file.Close()
	bytes, err := io.Copy(file, r)
	if err != nil {
		err = fmt.Errorf("Cannot write to '%s': %s", path, err.Error())
		t.log.Error(err)
		return err
	}
	t.log.Debugf("Extracted file '%s': %d bytes", path, bytes)
	return nil
}

// TarFile archives srcpath into tarball, skipping the paths matching the
// patterns
func TarFile(ctx context.Context, srcpath, tarball string, l log.Logger, skip ...string) (int, error) {
	t, err := NewTarFile(tarball, l)
	if err != nil {
		return 0, err
	}
	if err = t.Add(ctx, srcpath, ".", Skip(skip...)); err != nil {
		t.Close()
		return 0, err
	}
	return t.Files(), t.Close()
}

func UnTarFile(ctx context.Context, tarball, dstpath string, l log.Logger) error {
	t := NewTar(dstpath, l)
	defer t.Close()
	reader, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer reader.Close()
	return t.UnTar(ctx, reader)
}
