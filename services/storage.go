package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// StorageService holds evidence files referenced by batch file items and
// report submissions (screenshots, forwarded messages, exported chats).
type StorageService struct {
	appContext.DefaultService

	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

const STORAGE_SVC = "storage_svc"

func (svc StorageService) Id() string {
	return STORAGE_SVC
}

func (svc *StorageService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	if svc.endpoint == "" {
		svc.endpoint = "localhost:9000"
	}

	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	if svc.accessKey == "" {
		svc.accessKey = "admin"
	}

	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	if svc.secretKey == "" {
		svc.secretKey = "password123"
	}

	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"

	svc.bucketName = os.Getenv("MINIO_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "shield-evidence"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *StorageService) Start() error {
	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Printf("Storage service started with endpoint: %s", svc.endpoint)
	return nil
}

func (svc *StorageService) ensureBucket() error {
	ctx := context.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{})
}

// PutEvidence stores an evidence object and returns its key.
func (svc *StorageService) PutEvidence(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := svc.client.PutObject(ctx, svc.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store evidence %s: %w", key, err)
	}
	return key, nil
}

// FetchText retrieves a stored evidence object as text for analysis.
func (svc *StorageService) FetchText(ctx context.Context, key string) (string, error) {
	obj, err := svc.client.GetObject(ctx, svc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch evidence %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read evidence %s: %w", key, err)
	}
	return string(data), nil
}

func (svc *StorageService) RemoveEvidence(ctx context.Context, key string) error {
	return svc.client.RemoveObject(ctx, svc.bucketName, key, minio.RemoveObjectOptions{})
}
