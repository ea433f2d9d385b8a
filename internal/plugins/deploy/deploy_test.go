package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "serverless/internal/engine"
	plugins "serverless/internal/plugins"
	_ "serverless/internal/plugins/packaging"
	"serverless/internal/plugins/plugintest"
)

func load(t *testing.T, fw *engine.Framework, names ...string) {
	for _, name := range names {
		d, err := plugins.Lookup(name)
		require.NoError(t, err)
		require.NoError(t, fw.Manager.AddPlugin(d))
	}
}

func TestDeploySpawnsPackage(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	plugintest.WriteFile(t, cfg, "handler.sh", "echo hello")
	fw, _, _ := plugintest.Framework(cfg)
	load(t, fw, "package", "deploy")
	rec := plugintest.NewRecorder("package:createDeploymentArtifacts", "deploy:deploy", "after:deploy:finalize")
	require.NoError(t, fw.Manager.AddPlugin(rec.Descriptor("provider")))

	fw.Manager.SetCliOptions(engine.Options{"stage": "prod", "r": "eu-west-1"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"package:createDeploymentArtifacts", "deploy:deploy", "after:deploy:finalize"}, rec.Calls)
	assert.FileExists(t, cfg.Package.Artifact)
	assert.Equal(t, "prod", cfg.Provider.Stage)
	assert.Equal(t, "eu-west-1", cfg.Provider.Region)
}

func TestDeployWithPackage(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	artifact := plugintest.WriteFile(t, cfg, "build/hello.tar", "tar")
	fw, _, _ := plugintest.Framework(cfg)
	load(t, fw, "package", "deploy")
	rec := plugintest.NewRecorder("package:createDeploymentArtifacts", "deploy:deploy")
	require.NoError(t, fw.Manager.AddPlugin(rec.Descriptor("provider")))

	fw.Manager.SetCliOptions(engine.Options{"package": "build"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
	assert.Equal(t, []string{"deploy:deploy"}, rec.Calls)
	assert.Equal(t, artifact, cfg.Package.Artifact)

	fw.Manager.SetCliOptions(engine.Options{"package": "missing"})
	assert.Error(t, fw.Manager.Run(context.Background(), []string{"deploy"}))
}

func TestDeployFunction(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	fw, _, _ := plugintest.Framework(cfg)
	load(t, fw, "package", "deploy")
	rec := plugintest.NewRecorder("deploy:function:deploy")
	require.NoError(t, fw.Manager.AddPlugin(rec.Descriptor("provider")))

	err := fw.Manager.Run(context.Background(), []string{"deploy", "function"})
	assert.ErrorIs(t, err, engine.ErrMissingRequiredOption)

	fw.Manager.SetCliOptions(engine.Options{"f": "missing"})
	err = fw.Manager.Run(context.Background(), []string{"deploy", "function"})
	assert.EqualError(t, err, "Function \"missing\" doesn't exist in this Service")

	fw.Manager.SetCliOptions(engine.Options{"f": "hello"})
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy", "function"}))
	assert.Equal(t, []string{"deploy:function:deploy"}, rec.Calls)
	assert.Equal(t, filepath.Join(cfg.ServicePath, ".serverless", "hello.tar"), cfg.Package.Artifact)
}

func TestDeployListFunctions(t *testing.T) {
	cfg := plugintest.Service(t, "aws")
	fw, _, _ := plugintest.Framework(cfg)
	load(t, fw, "deploy")
	assert.Equal(t, []string{
		"before:deploy:list:functions:log", "deploy:list:functions:log", "after:deploy:list:functions:log",
	}, fw.Manager.Events([]string{"deploy", "list", "functions"}))
	require.NoError(t, fw.Manager.Run(context.Background(), []string{"deploy", "list", "functions"}))
}
