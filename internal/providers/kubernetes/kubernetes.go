package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	manifests "serverless/internal/manifests"
	plugins "serverless/internal/plugins"

	"github.com/cenkalti/backoff/v4"
	k8sApiErrors "k8s.io/apimachinery/pkg/api/errors"
	k8sApiMetaUnstructured "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sLabels "k8s.io/apimachinery/pkg/labels"
)

const ProviderName = "kubernetes"

func init() {
	plugins.Register(engine.Descriptor{Name: ProviderName, Factory: NewFactory(Connect)})
}

// Connector returns a cluster client from a kube config file
type Connector func(kubeconfig string, l log.Logger) (Cluster, error)

// Kubernetes deploys every function as a Deployment (and a Service when it
// listens on a port) with server side apply
type Kubernetes struct {
	fw      *engine.Framework
	opts    engine.Options
	log     log.Logger
	connect Connector
	cluster Cluster
	// retries of every cluster call
	retries uint64
}

func NewFactory(connect Connector) engine.Factory {
	return func(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
		return &Kubernetes{
			fw:      fw,
			opts:    opts,
			log:     fw.Log.WithField("plugin", ProviderName),
			connect: connect,
			retries: 3,
		}, nil
	}
}

// Provider makes the plugin apply only to kubernetes services
func (k *Kubernetes) Provider() engine.ProviderRef {
	return engine.ProviderName(ProviderName)
}

func (k *Kubernetes) Commands() engine.CommandMap {
	return nil
}

func (k *Kubernetes) Hooks() engine.HookMap {
	return engine.HookMap{
		"package:compileFunctions":  k.compileFunctions,
		"deploy:deploy":             k.deploy,
		"deploy:function:deploy":    k.deployFunction,
		"deploy:list:log":           k.list,
		"deploy:list:functions:log": k.list,
		"remove:remove":             k.remove,
		"info:info":                 k.info,
	}
}

func (k *Kubernetes) client() (Cluster, error) {
	if k.cluster != nil {
		return k.cluster, nil
	}
	cluster, err := k.connect(k.fw.Config.Provider.KubeConfig, k.log)
	if err != nil {
		err = fmt.Errorf("Unable to connect with kubernetes: %s", err.Error())
		k.log.Error(err)
		return nil, err
	}
	k.cluster = cluster
	return cluster, nil
}

// retry runs a cluster call with exponential backoff. Errors that will not
// go away by retrying stop it at once.
func (k *Kubernetes) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, k.retries), ctx))
}

func transient(err error) bool {
	return k8sApiErrors.IsServerTimeout(err) || k8sApiErrors.IsTimeout(err) ||
		k8sApiErrors.IsTooManyRequests(err) || k8sApiErrors.IsServiceUnavailable(err) ||
		k8sApiErrors.IsInternalError(err) || k8sApiErrors.IsConflict(err)
}

// ManifestPath is the file with the manifests of the service
func (k *Kubernetes) ManifestPath() string {
	return filepath.Join(plugins.StateDir(k.fw, k.opts), manifests.Filename)
}

func (k *Kubernetes) render(functions ...string) ([]*k8sApiMetaUnstructured.Unstructured, error) {
	data := manifests.NewContextData(k.fw.Config, k.log)
	if len(functions) > 0 {
		selected := []*manifests.FunctionData{}
		for _, name := range functions {
			f, err := data.Function(name)
			if err != nil {
				return nil, err
			}
			selected = append(selected, f)
		}
		data.Functions = selected
	}
	buffer := &bytes.Buffer{}
	g, err := manifests.NewGenerator(buffer)
	if err != nil {
		return nil, err
	}
	if err := g.GenerateAll(data); err != nil {
		return nil, err
	}
	return Decode(buffer)
}

func (k *Kubernetes) compileFunctions(ctx context.Context) error {
	path := k.ManifestPath()
	data := manifests.NewContextData(k.fw.Config, k.log)
	if err := manifests.New(data, path, true); err != nil {
		err = fmt.Errorf("Unable to generate kubernetes manifests: %s", err.Error())
		k.log.Error(err)
		return err
	}
	k.log.Infof("Generated kubernetes manifests for %d functions in %s", len(data.Functions), path)
	return nil
}

func (k *Kubernetes) objects() ([]*k8sApiMetaUnstructured.Unstructured, error) {
	path := k.ManifestPath()
	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		k.log.Debugf("No manifests in %s, generating them", path)
		return k.render()
	}
	if err != nil {
		return nil, fmt.Errorf("Could not read manifest: %s", err.Error())
	}
	defer fd.Close()
	return Decode(fd)
}

func (k *Kubernetes) apply(ctx context.Context, objects []*k8sApiMetaUnstructured.Unstructured) error {
	cluster, err := k.client()
	if err != nil {
		return err
	}
	for _, obj := range objects {
		err := k.retry(ctx, func() error {
			return cluster.Apply(ctx, obj)
		})
		if err != nil {
			err = fmt.Errorf("Unable to apply %s '%s': %s", obj.GetKind(), obj.GetName(), err.Error())
			k.log.Error(err)
			return err
		}
		k.log.Infof("Applied %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
	}
	return nil
}

func (k *Kubernetes) deploy(ctx context.Context) error {
	objects, err := k.objects()
	if err != nil {
		k.log.Error(err)
		return err
	}
	return k.apply(ctx, objects)
}

func (k *Kubernetes) deployFunction(ctx context.Context) error {
	name, _, err := plugins.Function(k.fw, k.opts)
	if err != nil {
		k.log.Error(err)
		return err
	}
	objects, err := k.render(name)
	if err != nil {
		k.log.Error(err)
		return err
	}
	return k.apply(ctx, objects)
}

func (k *Kubernetes) remove(ctx context.Context) error {
	cluster, err := k.client()
	if err != nil {
		return err
	}
	objects, err := k.render()
	if err != nil {
		k.log.Error(err)
		return err
	}
	for _, obj := range objects {
		err := k.retry(ctx, func() error {
			return cluster.Delete(ctx, obj)
		})
		if k8sApiErrors.IsNotFound(err) {
			k.log.Debugf("%s '%s' not found", obj.GetKind(), obj.GetName())
			continue
		}
		if err != nil {
			err = fmt.Errorf("Unable to delete %s '%s': %s", obj.GetKind(), obj.GetName(), err.Error())
			k.log.Error(err)
			return err
		}
		k.log.Infof("Deleted %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
	}
	return nil
}

func (k *Kubernetes) selector() string {
	cfg := k.fw.Config
	return k8sLabels.SelectorFromSet(k8sLabels.Set{
		"app.kubernetes.io/part-of": cfg.Service,
		"serverless/stage":          cfg.Provider.Stage,
	}).String()
}

func (k *Kubernetes) deployed(ctx context.Context) ([]plugins.Field, error) {
	cluster, err := k.client()
	if err != nil {
		return nil, err
	}
	namespace := k.fw.Config.Provider.Namespace
	fields := []plugins.Field{}
	err = k.retry(ctx, func() error {
		deployments, err := cluster.Deployments(ctx, namespace, k.selector())
		if err != nil {
			return err
		}
		fields = fields[:0]
		for _, d := range deployments {
			replicas := int32(1)
			if d.Spec.Replicas != nil {
				replicas = *d.Spec.Replicas
			}
			value := fmt.Sprintf("%s/%s ready, version %s",
				strconv.Itoa(int(d.Status.ReadyReplicas)), strconv.Itoa(int(replicas)),
				d.Labels["app.kubernetes.io/version"])
			fields = append(fields, plugins.Field{Key: d.Labels["serverless/function"], Value: value})
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("Unable to list deployments in '%s': %s", namespace, err.Error())
		k.log.Error(err)
		return nil, err
	}
	return fields, nil
}

func (k *Kubernetes) list(ctx context.Context) error {
	fields, err := k.deployed(ctx)
	if err != nil {
		return err
	}
	plugins.PrintSection(k.fw.Output, "Deployed functions", fields...)
	return nil
}

func (k *Kubernetes) info(ctx context.Context) error {
	fields, err := k.deployed(ctx)
	if err != nil {
		return err
	}
	fields = append([]plugins.Field{{Key: "namespace", Value: k.fw.Config.Provider.Namespace}}, fields...)
	plugins.PrintSection(k.fw.Output, "kubernetes", fields...)
	return nil
}
