package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureArchiver stores uploads as blobs in a fixed container.
type AzureArchiver struct {
	client    *azblob.Client
	container string
}

func NewAzureArchiver(accountName, accountKey, container string) (*AzureArchiver, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return &AzureArchiver{client: client, container: container}, nil
}

func (a *AzureArchiver) Store(ctx context.Context, name string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, name, data, nil)
	if err != nil {
		return fmt.Errorf("blob upload failed: %w", err)
	}
	return nil
}
