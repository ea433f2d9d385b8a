package docker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	config "serverless/internal/config"
	engine "serverless/internal/engine"
	log "serverless/internal/log"
	manifests "serverless/internal/manifests"
	plugins "serverless/internal/plugins"

	dockertypes "github.com/docker/docker/api/types"
	dockertypescontainer "github.com/docker/docker/api/types/container"
	dockertypesnetwork "github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	dockererrors "github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	dockernat "github.com/docker/go-connections/nat"
	jsoniter "github.com/json-iterator/go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const ProviderName = "docker"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	plugins.Register(engine.Descriptor{
		Name:     ProviderName,
		Provider: engine.ProviderName(ProviderName),
		Factory:  NewFactory(Connect),
	})
}

// Client is the part of the Docker API used by the provider
type Client interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options dockertypes.ImageBuildOptions) (dockertypes.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, image string, options dockertypes.ImagePushOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, image string) (dockertypes.ImageInspect, []byte, error)
	ImageRemove(ctx context.Context, image string, options dockertypes.ImageRemoveOptions) ([]dockertypes.ImageDeleteResponseItem, error)
	ContainerCreate(ctx context.Context, config *dockertypescontainer.Config, hostConfig *dockertypescontainer.HostConfig, networkingConfig *dockertypesnetwork.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockertypescontainer.ContainerCreateCreatedBody, error)
	ContainerStart(ctx context.Context, container string, options dockertypes.ContainerStartOptions) error
	ContainerLogs(ctx context.Context, container string, options dockertypes.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, container string, condition dockertypescontainer.WaitCondition) (<-chan dockertypescontainer.ContainerWaitOKBody, <-chan error)
	ContainerRemove(ctx context.Context, container string, options dockertypes.ContainerRemoveOptions) error
	Close() error
}

// Connect returns a client for the Docker server given by the environment
func Connect() (Client, error) {
	cli, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// Docker runs the functions of a service as containers of one image, built
// from the service package
type Docker struct {
	fw      *engine.Framework
	opts    engine.Options
	log     log.Logger
	connect func() (Client, error)
	cli     Client
	image   string
}

// NewFactory returns a plugin factory using connect to reach Docker
func NewFactory(connect func() (Client, error)) engine.Factory {
	return func(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
		return &Docker{
			fw:      fw,
			opts:    opts,
			log:     fw.Log.WithField("plugin", ProviderName),
			connect: connect,
		}, nil
	}
}

func (d *Docker) Commands() engine.CommandMap {
	return nil
}

func (d *Docker) Hooks() engine.HookMap {
	return engine.HookMap{
		"after:package:createDeploymentArtifacts": d.build,
		"deploy:deploy":                           d.deploy,
		"deploy:function:deploy":                  d.deploy,
		"invoke:invoke":                           d.invoke,
		"remove:remove":                           d.remove,
		"info:info":                               d.info,
		"after:deploy:finalize":                   d.close,
	}
}

func (d *Docker) client() (Client, error) {
	if d.cli != nil {
		return d.cli, nil
	}
	cli, err := d.connect()
	if err != nil {
		err = fmt.Errorf("Unable to get connection with Docker: %s", err.Error())
		d.log.Error(err)
		return nil, err
	}
	d.cli = cli
	return cli, nil
}

func (d *Docker) close(ctx context.Context) error {
	if d.cli == nil {
		return nil
	}
	err := d.cli.Close()
	d.cli = nil
	return err
}

// Image is the name of the service image
func (d *Docker) Image() string {
	if d.image == "" {
		d.image = manifests.NewContextData(d.fw.Config, d.log).Image
	}
	return d.image
}

func (d *Docker) registryAuth(image string) string {
	p := d.fw.Config.Provider
	imageRegistry := strings.SplitN(image, "/", 2)
	if p.Registry == "" || !strings.Contains(p.Registry, imageRegistry[0]) {
		return ""
	}
	authConfig := dockertypes.AuthConfig{
		Username:      p.Username,
		Password:      p.Password,
		ServerAddress: p.Registry,
	}
	authConfigBytes, _ := json.Marshal(authConfig)
	return base64.URLEncoding.EncodeToString(authConfigBytes)
}

// build creates the service image using the package as docker context
func (d *Docker) build(ctx context.Context) error {
	cfg := d.fw.Config
	cli, err := d.client()
	if err != nil {
		return err
	}
	artifact, err := os.Open(cfg.Package.Artifact)
	if err != nil {
		err = fmt.Errorf("Unable to read package '%s': %s", cfg.Package.Artifact, err.Error())
		d.log.Error(err)
		return err
	}
	defer artifact.Close()
	image := d.Image()
	service := cfg.Service
	stage := cfg.Provider.Stage
	options := dockertypes.ImageBuildOptions{
		Remove:      true,
		ForceRemove: true,
		Dockerfile:  cfg.Provider.Dockerfile,
		Tags:        []string{image},
		BuildArgs: map[string]*string{
			"SERVICE": &service,
			"STAGE":   &stage,
		},
		Labels: map[string]string{
			"serverless.service": service,
			"serverless.stage":   stage,
		},
	}
	d.log.Infof("Building docker image '%s' ...", image)
	resp, err := cli.ImageBuild(ctx, artifact, options)
	if err != nil {
		err = fmt.Errorf("Unable to build image '%s': %s", image, err.Error())
		d.log.Error(err)
		return err
	}
	defer resp.Body.Close()
	if err = displayJSONMessagesStream(resp.Body, d.fw.Output, d.log); err != nil {
		err = fmt.Errorf("Docker build error: %s", err.Error())
		d.log.Error(err)
		return err
	}
	// this will check if image build was successful
	inspect, _, err := cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		err = fmt.Errorf("Image build not completed: %s", err.Error())
		d.log.Error(err)
		return err
	}
	d.log.Debugf("Built image %s (%s)", image, inspect.ID)
	return nil
}

// deploy pushes the service image to the registry
func (d *Docker) deploy(ctx context.Context) error {
	cfg := d.fw.Config
	cli, err := d.client()
	if err != nil {
		return err
	}
	image := d.Image()
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err != nil {
		if !dockererrors.IsNotFound(err) {
			err = fmt.Errorf("Unable to inspect image '%s': %s", image, err.Error())
			d.log.Error(err)
			return err
		}
		if err := d.build(ctx); err != nil {
			return err
		}
	}
	if cfg.Provider.Registry == "" {
		d.log.Infof("No registry configured, image '%s' only available locally", image)
		return nil
	}
	d.log.Infof("Pushing image '%s' to '%s' ...", image, cfg.Provider.Registry)
	resp, err := cli.ImagePush(ctx, image, dockertypes.ImagePushOptions{
		RegistryAuth: d.registryAuth(image),
	})
	if err != nil {
		err = fmt.Errorf("Unable to push image '%s' to '%s': %s", image, cfg.Provider.Registry, err.Error())
		d.log.Error(err)
		return err
	}
	defer resp.Close()
	if err := displayJSONMessagesStream(resp, d.fw.Output, d.log); err != nil {
		err = fmt.Errorf("Push error message: %s", err.Error())
		d.log.Error(err)
		return err
	}
	return nil
}

// environment returns the variables of a function container
func (d *Docker) environment(name string, f *config.Function) []string {
	cfg := d.fw.Config
	env := map[string]string{
		"SLS_SERVICE":  cfg.Service,
		"SLS_STAGE":    cfg.Provider.Stage,
		"SLS_FUNCTION": name,
	}
	if p, err := d.fw.Manager.Plugin("invoke"); err == nil {
		if i, ok := p.(interface{ Data() string }); ok && i.Data() != "" {
			env["SLS_DATA"] = i.Data()
		}
	}
	for k, v := range f.Environment {
		env[k] = v
	}
	envlist := make([]string, 0, len(env))
	for k, v := range env {
		envlist = append(envlist, fmt.Sprintf("%s=%s", k, v))
	}
	return envlist
}

// invoke runs the function handler in a container of the service image and
// waits for it
func (d *Docker) invoke(ctx context.Context) error {
	name, f, err := plugins.Function(d.fw, d.opts)
	if err != nil {
		d.log.Error(err)
		return err
	}
	cli, err := d.client()
	if err != nil {
		return err
	}
	image := d.Image()
	if f.Image != "" {
		image = f.Image
	}
	inspect, _, err := cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		err = fmt.Errorf("Unknown image '%s': %s", image, err.Error())
		d.log.Error(err)
		return err
	}
	containerName := manifests.FullName(d.fw.Config.Service, d.fw.Config.Provider.Stage, name)
	portMap := dockernat.PortMap{}
	exposed := dockernat.PortSet{}
	if f.Port > 0 {
		port, err := dockernat.NewPort("tcp", strconv.Itoa(f.Port))
		if err != nil {
			err = fmt.Errorf("Unable to setup docker networking for container '%s': %s", containerName, err.Error())
			d.log.Error(err)
			return err
		}
		exposed[port] = struct{}{}
		portMap[port] = []dockernat.PortBinding{{HostPort: port.Port()}}
	}
	resources := dockertypescontainer.Resources{}
	if f.MemorySize > 0 {
		resources.Memory = int64(f.MemorySize) * 1024 * 1024
	}
	hostConfig := dockertypescontainer.HostConfig{
		AutoRemove:   false,
		PortBindings: portMap,
		Resources:    resources,
	}
	containerConfig := dockertypescontainer.Config{
		Hostname:     containerName,
		AttachStdout: true,
		AttachStderr: true,
		Image:        inspect.ID,
		Cmd:          []string{"/bin/sh", "-c", f.Handler},
		Env:          d.environment(name, f),
		ExposedPorts: exposed,
	}
	specs := ocispec.Platform{
		Architecture: inspect.Architecture,
		OS:           inspect.Os,
	}
	networkConfig := dockertypesnetwork.NetworkingConfig{}
	resp, err := cli.ContainerCreate(ctx, &containerConfig, &hostConfig, &networkConfig, &specs, containerName)
	if err != nil && dockererrors.IsConflict(err) {
		if err = d.removeContainer(ctx, containerName); err != nil {
			return err
		}
		resp, err = cli.ContainerCreate(ctx, &containerConfig, &hostConfig, &networkConfig, &specs, containerName)
	}
	if err != nil {
		err = fmt.Errorf("Unable to create container '%s': %s", containerName, err.Error())
		d.log.Error(err)
		return err
	}
	for _, w := range resp.Warnings {
		d.log.Warn(w)
	}
	defer d.removeContainer(context.Background(), resp.ID)
	if err = cli.ContainerStart(ctx, resp.ID, dockertypes.ContainerStartOptions{}); err != nil {
		err = fmt.Errorf("Unable to start container '%s': %s", containerName, err.Error())
		d.log.Error(err)
		return err
	}
	logs, err := cli.ContainerLogs(ctx, resp.ID, dockertypes.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		err = fmt.Errorf("Unable to get stdout/stderr from container '%s': %s", containerName, err.Error())
		d.log.Error(err)
		return err
	}
	defer logs.Close()
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(d.fw.Output, d.fw.Output, logs)
		copied <- err
	}()
	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, dockertypescontainer.WaitConditionNotRunning)
	select {
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("Function container '%s' failed: %s", containerName, err.Error())
			d.log.Error(err)
		}
		return err
	case status := <-statusCh:
		if err := <-copied; err != nil {
			d.log.Warnf("Unable to copy output of container '%s': %s", containerName, err.Error())
		}
		if status.StatusCode != 0 {
			err = fmt.Errorf("Function \"%s\" exited with status %d", name, status.StatusCode)
			d.log.Error(err)
			return err
		}
		d.log.Debugf("Function container '%s' exited with status 0", containerName)
	}
	return nil
}

func (d *Docker) removeContainer(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})
	if err != nil && !dockererrors.IsNotFound(err) {
		err = fmt.Errorf("Unable to remove (running?) container: %s", err.Error())
		d.log.Error(err)
		return err
	}
	return nil
}

// remove deletes the service image
func (d *Docker) remove(ctx context.Context) error {
	cli, err := d.client()
	if err != nil {
		return err
	}
	image := d.Image()
	inspect, _, err := cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		if dockererrors.IsNotFound(err) {
			d.log.Warnf("Image '%s' not found, nothing to remove", image)
			return nil
		}
		err = fmt.Errorf("Unable to inspect image '%s': %s", image, err.Error())
		d.log.Error(err)
		return err
	}
	_, err = cli.ImageRemove(ctx, inspect.ID, dockertypes.ImageRemoveOptions{
		PruneChildren: true,
		Force:         true,
	})
	if err != nil {
		err = fmt.Errorf("Unable to remove image: %s", err.Error())
		d.log.Error(err)
		return err
	}
	d.log.Infof("Removed image '%s'", image)
	return nil
}

// info prints the details of the service image
func (d *Docker) info(ctx context.Context) error {
	cli, err := d.client()
	if err != nil {
		return err
	}
	image := d.Image()
	inspect, _, err := cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		if dockererrors.IsNotFound(err) {
			plugins.PrintSection(d.fw.Output, "docker", plugins.Field{Key: "image", Value: image + " (not built)"})
			return nil
		}
		err = fmt.Errorf("Unknown image '%s': %s", image, err.Error())
		d.log.Error(err)
		return err
	}
	plugins.PrintSection(d.fw.Output, "docker",
		plugins.Field{Key: "image", Value: image},
		plugins.Field{Key: "id", Value: inspect.ID},
		plugins.Field{Key: "created", Value: inspect.Created},
		plugins.Field{Key: "size", Value: strconv.FormatInt(inspect.Size, 10)},
		plugins.Field{Key: "platform", Value: inspect.Os + "/" + inspect.Architecture},
	)
	return nil
}
