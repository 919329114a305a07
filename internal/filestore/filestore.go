/*
Copyright 2024 LedgerSnap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package filestore

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/ledgersnap/ledgersnap/config"
)

// Store is the file-store collaborator: binary payloads go in, an opaque file
// reference comes out. Upload failures are retryable; file naming is not
// idempotent, so a retried job may leave an orphaned object behind (accepted
// cost, not auto-cleaned).
type Store interface {
	Upload(ctx context.Context, folder string, data []byte, mimeType, name string) (string, error)
}

// S3Store implements Store on an S3-compatible bucket. Each tenant gets a
// folder (key prefix) under the bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3 client from the loaded configuration.
func NewS3Store(ctx context.Context, conf *config.Configuration) (*S3Store, error) {
	if conf.S3.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(conf.S3.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			conf.S3.AccessKeyID, conf.S3.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if conf.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: conf.S3.Bucket}, nil
}

// Upload stores the payload under <folder>/<name> and returns the object key
// as the file reference.
func (s *S3Store) Upload(ctx context.Context, folder string, data []byte, mimeType, name string) (string, error) {
	key := path.Join(folder, name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s to bucket %s", key, s.bucket)
	}

	return key, nil
}
