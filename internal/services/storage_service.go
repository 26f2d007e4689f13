// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

// MetadataStore publishes token metadata and returns its URI.
type MetadataStore interface {
	StoreTicketMetadata(ctx context.Context, ticket *models.Ticket, event *EventInfo) (string, error)
}

type StorageService struct {
	s3Client s3iface.S3API
	config   *config.Config
}

// TokenMetadata follows the ERC-721 metadata JSON schema.
type TokenMetadata struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	ExternalURL string           `json:"external_url,omitempty"`
	Attributes  []TokenAttribute `json:"attributes"`
}

type TokenAttribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: config}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// NewStorageServiceWithClient uses an existing S3 client.
func NewStorageServiceWithClient(config *config.Config, client s3iface.S3API) *StorageService {
	return &StorageService{s3Client: client, config: config}
}

func (s *StorageService) StoreTicketMetadata(ctx context.Context, ticket *models.Ticket, event *EventInfo) (string, error) {
	metadata := BuildTokenMetadata(ticket, event, s.config.Frontend.BaseURL)

	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode token metadata: %w", err)
	}

	key := fmt.Sprintf("tickets/%s/%s.json", ticket.EventID, ticket.ID)

	// Upload to S3 or local storage
	if s.s3Client != nil {
		return s.uploadToS3(ctx, body, key)
	}

	return s.uploadToLocal(body, key)
}

// BuildTokenMetadata describes a ticket for wallets and marketplaces.
func BuildTokenMetadata(ticket *models.Ticket, event *EventInfo, frontendURL string) TokenMetadata {
	metadata := TokenMetadata{
		Name:        fmt.Sprintf("%s - %s Seat %s", event.Title, ticket.Section, ticket.Seat),
		Description: fmt.Sprintf("Admission to %s at %s", event.Title, event.VenueName),
		Attributes: []TokenAttribute{
			{TraitType: "Event", Value: event.Title},
			{TraitType: "Venue", Value: event.VenueName},
			{TraitType: "Date", Value: event.StartsAt.UTC().Format(time.RFC3339)},
			{TraitType: "Section", Value: ticket.Section},
			{TraitType: "Row", Value: ticket.Row},
			{TraitType: "Seat", Value: ticket.Seat},
		},
	}
	if frontendURL != "" {
		metadata.ExternalURL = fmt.Sprintf("%s/tickets/%s", frontendURL, ticket.ID)
	}
	return metadata
}

func (s *StorageService) uploadToS3(ctx context.Context, body []byte, key string) (string, error) {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.getS3URL(key), nil
}

// uploadToLocal writes under LOCAL_UPLOAD_DIR, which the router serves at
// /uploads outside production.
func (s *StorageService) uploadToLocal(body []byte, key string) (string, error) {
	path := filepath.Join(s.config.AWS.LocalDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write metadata file: %w", err)
	}

	return fmt.Sprintf("http://%s:%s/uploads/%s", s.config.Server.Host, s.config.Server.Port, key), nil
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}
