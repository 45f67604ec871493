package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"
)

// SupabaseStorage keeps blobs in a Supabase Storage bucket
type SupabaseStorage struct {
	baseURL    string
	apiKey     string
	bucketName string
	httpClient *http.Client
	newName    func(ext string) string
}

// NewSupabaseStorage creates a new Supabase Storage client
func NewSupabaseStorage(projectID, apiKey, bucketName string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    fmt.Sprintf("https://%s.supabase.co", projectID),
		apiKey:     apiKey,
		bucketName: bucketName,
		httpClient: &http.Client{},
		newName:    utils.BlobName,
	}
}

func (s *SupabaseStorage) objectURL(ref string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucketName, ref)
}

func (s *SupabaseStorage) do(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return s.httpClient.Do(req)
}

// Put uploads data without upsert, so the bucket answers 409 when the name
// is taken and a new name is tried.
func (s *SupabaseStorage) Put(ctx context.Context, data []byte, ext string) (string, error) {
	for range maxPutAttempts {
		name := s.newName(ext)

		resp, err := s.do(ctx, http.MethodPost, s.objectURL(name), data, http.DetectContentType(data))
		if err != nil {
			return "", fmt.Errorf("%w: failed to upload file: %v", types.ErrStorage, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			return name, nil
		case http.StatusConflict:
			continue
		default:
			return "", fmt.Errorf("%w: upload failed with status %d: %s", types.ErrStorage, resp.StatusCode, string(body))
		}
	}

	return "", fmt.Errorf("%w: no free image name after %d attempts", types.ErrStorage, maxPutAttempts)
}

func (s *SupabaseStorage) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/storage/v1/object/authenticated/%s/%s", s.baseURL, s.bucketName, ref)
	resp, err := s.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download file: %v", types.ErrStorage, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", types.ErrStorage, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound, http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", types.ErrImageNotFound, ref)
	default:
		return nil, fmt.Errorf("%w: download failed with status %d: %s", types.ErrStorage, resp.StatusCode, string(body))
	}
}

// Delete removes a file from Supabase Storage
func (s *SupabaseStorage) Delete(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodDelete, s.objectURL(ref), nil, "")
	if err != nil {
		return fmt.Errorf("%w: failed to delete file: %v", types.ErrStorage, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: delete failed with status %d: %s", types.ErrStorage, resp.StatusCode, string(body))
	}
}
