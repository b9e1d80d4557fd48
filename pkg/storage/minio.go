// Package storage 提供了上传文件的本地存储和 MinIO 归档。
package storage

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"smart-erp-go/internal/config"
	"smart-erp-go/pkg/log"
)

// Archive 把上传的原始文件镜像到 MinIO 存储桶。导入流程始终读取本地副本。
type Archive struct {
	client *minio.Client
	bucket string
}

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
	return &Archive{client: client, bucket: cfg.BucketName}, nil
}

// Put 上传本地文件为 objectName。
func (a *Archive) Put(ctx context.Context, objectName, path string) error {
	_, err := a.client.FPutObject(ctx, a.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Remove 删除归档对象，对象不存在不算错误。
func (a *Archive) Remove(ctx context.Context, objectName string) error {
	return a.client.RemoveObject(ctx, a.bucket, objectName, minio.RemoveObjectOptions{})
}
