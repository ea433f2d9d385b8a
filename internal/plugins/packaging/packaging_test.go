package packaging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
	plugins "serverless/internal/plugins"
	"serverless/internal/plugins/plugintest"
	tar "serverless/pkg/tar"
)

func TestPackage(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	cfg.Package.Exclude = []string{"*.log"}
	plugintest.WriteFile(t, cfg, "handler.sh", "echo hello")
	plugintest.WriteFile(t, cfg, "debug.log", "x")
	plugintest.WriteFile(t, cfg, ".serverless/stale.tar", "x")
	fw, _, _ := plugintest.Framework(cfg)
	d, err := plugins.Lookup("package")
	require.NoError(t, err)
	plugintest.Load(t, fw, d)

	require.NoError(t, fw.Manager.Run(context.Background(), []string{"package"}))
	artifact := filepath.Join(cfg.ServicePath, config.ServiceStateDir, "hello.tar")
	assert.Equal(t, artifact, cfg.Package.Artifact)
	assert.NoFileExists(t, filepath.Join(cfg.ServicePath, config.ServiceStateDir, "stale.tar"))

	dst := t.TempDir()
	require.NoError(t, tar.UnTarFile(context.Background(), artifact, dst, fw.Log))
	assert.FileExists(t, filepath.Join(dst, "handler.sh"))
	assert.NoFileExists(t, filepath.Join(dst, "debug.log"))
}

func TestPackageOutputOption(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	plugintest.WriteFile(t, cfg, "handler.sh", "echo hello")
	fw, _, _ := plugintest.Framework(cfg)
	d, err := plugins.Lookup("package")
	require.NoError(t, err)
	plugintest.Load(t, fw, d)

	fw.Manager.SetCliOptions(engine.Options{"p": "build", "s": "prod"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"package"}))
	assert.Equal(t, filepath.Join(cfg.ServicePath, "build", "hello.tar"), cfg.Package.Artifact)
	assert.Equal(t, "prod", cfg.Provider.Stage)
	_, err = os.Stat(cfg.Package.Artifact)
	assert.NoError(t, err)
}

func TestPackageWithoutService(t *testing.T) {
	fw, _, _ := plugintest.Framework(config.Empty(t.TempDir()))
	d, err := plugins.Lookup("package")
	require.NoError(t, err)
	plugintest.Load(t, fw, d)
	err = fw.Manager.Run(context.Background(), []string{"package"})
	assert.ErrorIs(t, err, engine.ErrNoService)
}

func TestPackageFunctionIsEntrypoint(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	fw, _, _ := plugintest.Framework(cfg)
	d, err := plugins.Lookup("package")
	require.NoError(t, err)
	plugintest.Load(t, fw, d)

	err = fw.Manager.Run(context.Background(), []string{"package", "function"})
	assert.ErrorIs(t, err, engine.ErrCommandNotFound)

	fw.Manager.SetCliOptions(engine.Options{"function": "hello"})
	require.NoError(t, fw.Manager.Spawn(context.Background(), "package:function", false))
	assert.FileExists(t, cfg.Package.Artifact)
}
