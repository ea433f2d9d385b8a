package aws

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	engine "serverless/internal/engine"
	log "serverless/internal/log"
	plugins "serverless/internal/plugins"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
)

const ProviderName = "aws"

// deployment folders are named by their UTC time
const timeLayout = "20060102T150405Z"

func init() {
	plugins.Register(engine.Descriptor{
		Name:     ProviderName,
		Provider: engine.ProviderName(ProviderName),
		Factory:  NewFactory(Connect),
	})
}

// Client is the part of the S3 API used by the provider
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Connector returns a S3 client for a region and a credentials profile
type Connector func(ctx context.Context, region, profile string) (Client, error)

// Connect loads the AWS shared configuration
func Connect(ctx context.Context, region, profile string) (Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// Deployment is a set of artifacts uploaded at once
type Deployment struct {
	Time      time.Time
	Artifacts []string
}

// AWS uploads the service package to a deployment bucket, one folder per
// deployment
type AWS struct {
	fw      *engine.Framework
	opts    engine.Options
	log     log.Logger
	connect Connector
	client  Client
	now     func() time.Time
	retries uint64
}

func NewFactory(connect Connector) engine.Factory {
	return func(fw *engine.Framework, opts engine.Options) (engine.Plugin, error) {
		return &AWS{
			fw:      fw,
			opts:    opts,
			log:     fw.Log.WithField("plugin", ProviderName),
			connect: connect,
			now:     time.Now,
			retries: 4,
		}, nil
	}
}

// Commands adds the credentials profile option to deploy
func (a *AWS) Commands() engine.CommandMap {
	return engine.CommandMap{
		"deploy": {
			Options: map[string]*engine.Option{
				"aws-profile": {
					Usage: "AWS profile to use with the command",
				},
			},
		},
	}
}

func (a *AWS) Hooks() engine.HookMap {
	return engine.HookMap{
		"deploy:deploy":             a.deploy,
		"deploy:function:deploy":    a.deployFunction,
		"deploy:list:log":           a.listDeployments,
		"deploy:list:functions:log": a.listFunctions,
		"remove:remove":             a.remove,
		"info:info":                 a.info,
	}
}

func (a *AWS) storage(ctx context.Context) (Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	profile := a.opts.String("aws-profile")
	if profile == "" {
		profile = a.fw.Config.Provider.Profile
	}
	client, err := a.connect(ctx, a.fw.Config.Provider.Region, profile)
	if err != nil {
		err = fmt.Errorf("Unable to load AWS configuration: %s", err.Error())
		a.log.Error(err)
		return nil, err
	}
	a.client = client
	return client, nil
}

// Bucket is the deployment bucket of the service
func (a *AWS) Bucket() string {
	p := a.fw.Config.Provider
	if p.DeploymentBucket != "" {
		return p.DeploymentBucket
	}
	return strings.ToLower(fmt.Sprintf("%s-%s-deployments", a.fw.Config.Service, p.Stage))
}

// Prefix is the folder of the service stage in the bucket
func (a *AWS) Prefix() string {
	return fmt.Sprintf("serverless/%s/%s/", a.fw.Config.Service, a.fw.Config.Provider.Stage)
}

func (a *AWS) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, a.retries), ctx))
}

func (a *AWS) upload(ctx context.Context, key string) error {
	client, err := a.storage(ctx)
	if err != nil {
		return err
	}
	artifact := a.fw.Config.Package.Artifact
	fd, err := os.Open(artifact)
	if err != nil {
		err = fmt.Errorf("Unable to read package '%s': %s", artifact, err.Error())
		a.log.Error(err)
		return err
	}
	defer fd.Close()
	bucket := a.Bucket()
	a.log.Infof("Uploading %s to s3://%s/%s", artifact, bucket, key)
	err = a.retry(ctx, func() error {
		if _, err := fd.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      awssdk.String(bucket),
			Key:         awssdk.String(key),
			Body:        fd,
			ContentType: awssdk.String("application/x-tar"),
		})
		return err
	})
	if err != nil {
		err = fmt.Errorf("Unable to upload package to bucket '%s': %s", bucket, err.Error())
		a.log.Error(err)
		return err
	}
	return nil
}

func (a *AWS) deploy(ctx context.Context) error {
	key := a.Prefix() + a.now().UTC().Format(timeLayout) + "/" + path.Base(a.fw.Config.Package.Artifact)
	return a.upload(ctx, key)
}

func (a *AWS) deployFunction(ctx context.Context) error {
	name, _, err := plugins.Function(a.fw, a.opts)
	if err != nil {
		a.log.Error(err)
		return err
	}
	key := a.Prefix() + a.now().UTC().Format(timeLayout) + "/" + name + ".tar"
	return a.upload(ctx, key)
}

func (a *AWS) objects(ctx context.Context) ([]s3types.Object, error) {
	client, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}
	objects := []s3types.Object{}
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: awssdk.String(a.Bucket()),
		Prefix: awssdk.String(a.Prefix()),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := a.retry(ctx, func() (err error) {
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			err = fmt.Errorf("Unable to list bucket '%s': %s", a.Bucket(), err.Error())
			a.log.Error(err)
			return nil, err
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

// Deployments returns the deployments of the stage, oldest first
func (a *AWS) Deployments(ctx context.Context) ([]Deployment, error) {
	objects, err := a.objects(ctx)
	if err != nil {
		return nil, err
	}
	prefix := a.Prefix()
	byTime := make(map[string]*Deployment)
	for _, obj := range objects {
		rel := strings.TrimPrefix(awssdk.ToString(obj.Key), prefix)
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) != 2 {
			continue
		}
		t, err := time.Parse(timeLayout, parts[0])
		if err != nil {
			a.log.Debugf("Ignoring object %s", awssdk.ToString(obj.Key))
			continue
		}
		d, ok := byTime[parts[0]]
		if !ok {
			d = &Deployment{Time: t}
			byTime[parts[0]] = d
		}
		d.Artifacts = append(d.Artifacts, parts[1])
	}
	deployments := make([]Deployment, 0, len(byTime))
	for _, d := range byTime {
		sort.Strings(d.Artifacts)
		deployments = append(deployments, *d)
	}
	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].Time.Before(deployments[j].Time)
	})
	return deployments, nil
}

func (a *AWS) listDeployments(ctx context.Context) error {
	deployments, err := a.Deployments(ctx)
	if err != nil {
		return err
	}
	if len(deployments) == 0 {
		a.log.Warnf("Couldn't find any existing deployments for stage %s", a.fw.Config.Provider.Stage)
		return nil
	}
	fields := make([]plugins.Field, 0, len(deployments))
	for _, d := range deployments {
		fields = append(fields, plugins.Field{
			Key:   d.Time.Format(time.RFC3339),
			Value: strings.Join(d.Artifacts, ", "),
		})
	}
	plugins.PrintSection(a.fw.Output, "Deployments", fields...)
	return nil
}

// listFunctions shows the last deployment of every function
func (a *AWS) listFunctions(ctx context.Context) error {
	deployments, err := a.Deployments(ctx)
	if err != nil {
		return err
	}
	cfg := a.fw.Config
	fields := []plugins.Field{}
	for _, name := range cfg.FunctionNames() {
		version := "not deployed"
		for _, d := range deployments {
			for _, artifact := range d.Artifacts {
				if artifact == name+".tar" || artifact == cfg.Service+".tar" {
					version = d.Time.Format(timeLayout)
				}
			}
		}
		fields = append(fields, plugins.Field{Key: name, Value: version})
	}
	plugins.PrintSection(a.fw.Output, "Functions", fields...)
	return nil
}

func (a *AWS) remove(ctx context.Context) error {
	client, err := a.storage(ctx)
	if err != nil {
		return err
	}
	objects, err := a.objects(ctx)
	if err != nil {
		return err
	}
	bucket := a.Bucket()
	for start := 0; start < len(objects); start += 1000 {
		end := start + 1000
		if end > len(objects) {
			end = len(objects)
		}
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		err := a.retry(ctx, func() error {
			_, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: awssdk.String(bucket),
				Delete: &s3types.Delete{
					Objects: ids,
					Quiet:   awssdk.Bool(true),
				},
			})
			return err
		})
		if err != nil {
			err = fmt.Errorf("Unable to remove deployments from bucket '%s': %s", bucket, err.Error())
			a.log.Error(err)
			return err
		}
	}
	a.log.Infof("Removed %d objects from s3://%s/%s", len(objects), bucket, a.Prefix())
	return nil
}

func (a *AWS) info(ctx context.Context) error {
	deployments, err := a.Deployments(ctx)
	if err != nil {
		return err
	}
	last := "none"
	if len(deployments) > 0 {
		last = deployments[len(deployments)-1].Time.Format(time.RFC3339)
	}
	plugins.PrintSection(a.fw.Output, "aws",
		plugins.Field{Key: "bucket", Value: a.Bucket()},
		plugins.Field{Key: "deployments", Value: fmt.Sprint(len(deployments))},
		plugins.Field{Key: "last deployment", Value: last},
	)
	return nil
}
