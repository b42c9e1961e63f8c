// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type S3Backend struct {
	// objectPrefix is the path prefix of the uploaded object.
	// For example, if the snapshotID which should be uploaded is "abc",
	// and the objectPrefix is "path/to/my-labels/", then the object key
	// will be "path/to/my-labels/abc".
	objectPrefix       string
	bucketName         string
	endpointWithScheme string
	client             *s3.Client
}

type S3Config struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	AccessKeySecret string `json:"access_key_secret,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Scheme          string `json:"scheme,omitempty"`
	BucketName      string `json:"bucket_name,omitempty"`
	Region          string `json:"region,omitempty"`
	ObjectPrefix    string `json:"object_prefix,omitempty"`
}

func newS3Backend(rawConfig []byte) (*S3Backend, error) {
	cfg := &S3Config{}
	if err := json.Unmarshal(rawConfig, cfg); err != nil {
		return nil, errors.Wrap(err, "parse S3 storage backend configuration")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	endpointWithScheme := fmt.Sprintf("%s://%s", cfg.Scheme, cfg.Endpoint)

	if cfg.BucketName == "" || cfg.Region == "" {
		return nil, fmt.Errorf("invalid S3 configuration: missing 'bucket_name' or 'region'")
	}

	s3AWSConfig, err := awscfg.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, errors.Wrap(err, "load default AWS config")
	}

	client := s3.NewFromConfig(s3AWSConfig, func(o *s3.Options) {
		o.BaseEndpoint = &endpointWithScheme
		o.Region = cfg.Region
		o.UsePathStyle = true
		if len(cfg.AccessKeySecret) > 0 && len(cfg.AccessKeyID) > 0 {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
		}
	})

	return &S3Backend{
		objectPrefix:       cfg.ObjectPrefix,
		bucketName:         cfg.BucketName,
		endpointWithScheme: endpointWithScheme,
		client:             client,
	}, nil
}

func (b *S3Backend) Upload(ctx context.Context, snapshotID, snapshotPath string, _ int64, forcePush bool) error {
	objectKey := b.objectKey(snapshotID)

	if !forcePush {
		if exist, err := b.existObject(ctx, objectKey); err != nil {
			return errors.Wrap(err, "check object existence")
		} else if exist {
			logrus.Infof("skip upload because snapshot exists: %s", snapshotID)
			return nil
		}
	}

	start := time.Now()

	snapshotFile, err := os.Open(snapshotPath)
	if err != nil {
		return errors.Wrap(err, "open snapshot file")
	}
	defer snapshotFile.Close()

	uploader := manager.NewUploader(b.client, func(u *manager.Uploader) {
		u.PartSize = multipartChunkSize
	})
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(b.bucketName),
		Key:               aws.String(objectKey),
		Body:              snapshotFile,
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc32,
	})
	if err != nil {
		return errors.Wrap(err, "upload snapshot to s3 backend")
	}

	logrus.Debugf("uploaded snapshot %s to s3 backend, costs %s", objectKey, time.Since(start))

	return nil
}

func (b *S3Backend) Finalize(_ bool) error {
	return nil
}

func (b *S3Backend) Check(snapshotID string) (bool, error) {
	return b.existObject(context.TODO(), b.objectKey(snapshotID))
}

func (b *S3Backend) Type() Type {
	return S3backend
}

func (b *S3Backend) existObject(ctx context.Context, objectKey string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.bucketName,
		Key:    &objectKey,
	})
	if err != nil {
		var responseError *awshttp.ResponseError
		if errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) objectKey(snapshotID string) string {
	return b.objectPrefix + snapshotID
}

func (b *S3Backend) Reader(snapshotID string) (io.ReadCloser, error) {
	objectKey := b.objectKey(snapshotID)
	output, err := b.client.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: &b.bucketName,
		Key:    &objectKey,
	})
	if err != nil {
		return nil, err
	}
	return output.Body, nil
}

func (b *S3Backend) Size(snapshotID string) (int64, error) {
	objectKey := b.objectKey(snapshotID)
	output, err := b.client.GetObjectAttributes(context.TODO(), &s3.GetObjectAttributesInput{
		Bucket:           &b.bucketName,
		Key:              &objectKey,
		ObjectAttributes: []types.ObjectAttributes{types.ObjectAttributesObjectSize},
	})
	if err != nil {
		return 0, errors.Wrap(err, "get object size")
	}
	return aws.ToInt64(output.ObjectSize), nil
}
