// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"io"
)

// Backend uploads labels.db snapshots to an off-site object storage:
// 1. oss: Alibaba Cloud object storage, multipart upload with CRC64
// integrity verification.
// 2. s3: AWS S3 or any S3-compatible endpoint.
// The snapshot ID is the sha256 digest of the database buffer, so
// identical snapshots are naturally deduplicated by an existence check.
type Backend interface {
	Upload(ctx context.Context, snapshotID, snapshotPath string, size int64, forcePush bool) error
	Finalize(cancel bool) error
	Check(snapshotID string) (bool, error)
	Type() Type
	Reader(snapshotID string) (io.ReadCloser, error)
	Size(snapshotID string) (int64, error)
}

type Type = int

const (
	OssBackend Type = iota
	S3backend
)

// NewBackend creates a storage backend from a JSON configuration blob.
// The configuration shape depends on the backend type.
func NewBackend(bt string, config []byte) (Backend, error) {
	switch bt {
	case "oss":
		return newOSSBackend(config)
	case "s3":
		return newS3Backend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type %s", bt)
	}
}
