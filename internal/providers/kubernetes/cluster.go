package kubernetes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/user"
	"path/filepath"
	"strings"

	log "serverless/internal/log"

	jsoniter "github.com/json-iterator/go"
	k8sAppsv1 "k8s.io/api/apps/v1"
	k8sApiMeta "k8s.io/apimachinery/pkg/api/meta"
	k8sApiMetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sApiMetaUnstructured "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sSerializerYaml "k8s.io/apimachinery/pkg/runtime/serializer/yaml"
	k8sApiTypes "k8s.io/apimachinery/pkg/types"
	k8sUtilYaml "k8s.io/apimachinery/pkg/util/yaml"
	k8sClientDiscovery "k8s.io/client-go/discovery"
	k8sClientCachedMemory "k8s.io/client-go/discovery/cached/memory"
	k8sClientDynamic "k8s.io/client-go/dynamic"
	k8sClientKubernetes "k8s.io/client-go/kubernetes"
	k8sClientRestmapper "k8s.io/client-go/restmapper"
	k8sClientcmd "k8s.io/client-go/tools/clientcmd"

	// load all auth plugins
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

// FieldManager owns the fields applied by the provider
const FieldManager = "serverless"

// Cluster is the part of the Kubernetes API used by the provider
type Cluster interface {
	Apply(ctx context.Context, obj *k8sApiMetaUnstructured.Unstructured) error
	Delete(ctx context.Context, obj *k8sApiMetaUnstructured.Unstructured) error
	Deployments(ctx context.Context, namespace, selector string) ([]k8sAppsv1.Deployment, error)
}

// Decode splits a multi document manifest into objects
func Decode(r io.Reader) ([]*k8sApiMetaUnstructured.Unstructured, error) {
	decUnstructured := k8sSerializerYaml.NewDecodingSerializer(k8sApiMetaUnstructured.UnstructuredJSONScheme)
	reader := k8sUtilYaml.NewYAMLReader(bufio.NewReader(r))
	objects := []*k8sApiMetaUnstructured.Unstructured{}
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Cannot read manifest: %s", err.Error())
		}
		if len(bytes.TrimSpace(doc)) == 0 || strings.TrimSpace(string(doc)) == "---" {
			continue
		}
		obj := &k8sApiMetaUnstructured.Unstructured{}
		if _, _, err := decUnstructured.Decode(doc, nil, obj); err != nil {
			return nil, fmt.Errorf("Cannot decode manifest: %s", err.Error())
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

type kubeCluster struct {
	clientset *k8sClientKubernetes.Clientset
	dynamic   k8sClientDynamic.Interface
	mapper    k8sApiMeta.RESTMapper
	log       log.Logger
}

// Connect returns a client for the cluster of the kube config file
func Connect(kubeconfig string, l log.Logger) (Cluster, error) {
	if strings.HasPrefix(kubeconfig, "~/") {
		usr, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("Cannot find home folder: %s", err.Error())
		}
		kubeconfig = filepath.Join(usr.HomeDir, kubeconfig[2:])
	}
	config, err := k8sClientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("Cannot read kubernetes config: %s", err.Error())
	}
	config.UserAgent = FieldManager
	clientset, err := k8sClientKubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("Cannot connect with kubernetes cluster: %s", err.Error())
	}
	// Prepare a RESTMapper to find GVR
	dc, err := k8sClientDiscovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("Cannot discover kubernetes resources: %s", err.Error())
	}
	if version, err := dc.ServerVersion(); err == nil {
		l.Debugf("Connected with kubernetes %s at %s", version.GitVersion, config.Host)
	}
	dynamic, err := k8sClientDynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("Cannot connect to kubernetes with dynamic client: %s", err.Error())
	}
	return &kubeCluster{
		clientset: clientset,
		dynamic:   dynamic,
		mapper:    k8sClientRestmapper.NewDeferredDiscoveryRESTMapper(k8sClientCachedMemory.NewMemCacheClient(dc)),
		log:       l,
	}, nil
}

func (k *kubeCluster) resource(obj *k8sApiMetaUnstructured.Unstructured) (k8sClientDynamic.ResourceInterface, error) {
	gvk := obj.GroupVersionKind()
	mapping, err := k.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("Cannot find GVK %s: %s", gvk.String(), err.Error())
	}
	if mapping.Scope.Name() != k8sApiMeta.RESTScopeNameNamespace {
		return nil, fmt.Errorf("Deploying cluster-wide resources not allowed, please define your namespace")
	}
	return k.dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace()), nil
}

// Apply creates or updates the object with server side apply
func (k *kubeCluster) Apply(ctx context.Context, obj *k8sApiMetaUnstructured.Unstructured) error {
	dr, err := k.resource(obj)
	if err != nil {
		return err
	}
	kubedef, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(obj)
	if err != nil {
		return fmt.Errorf("Cannot marshal manifest into JSON: %s", err.Error())
	}
	force := true
	_, err = dr.Patch(ctx, obj.GetName(), k8sApiTypes.ApplyPatchType, kubedef, k8sApiMetav1.PatchOptions{
		FieldManager: FieldManager,
		Force:        &force,
	})
	return err
}

func (k *kubeCluster) Delete(ctx context.Context, obj *k8sApiMetaUnstructured.Unstructured) error {
	dr, err := k.resource(obj)
	if err != nil {
		return err
	}
	propagation := k8sApiMetav1.DeletePropagationForeground
	return dr.Delete(ctx, obj.GetName(), k8sApiMetav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
}

func (k *kubeCluster) Deployments(ctx context.Context, namespace, selector string) ([]k8sAppsv1.Deployment, error) {
	list, err := k.clientset.AppsV1().Deployments(namespace).List(ctx, k8sApiMetav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}
