package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ImgurStorage implements MediaStore against the Imgur v3 image API.
type ImgurStorage struct {
	client    *http.Client
	clientID  string
	apiBase   string
	imageBase string
	maxFetch  int64
	log       *slog.Logger
}

// NewImgurStorage returns an Imgur-backed MediaStore. apiBase is typically
// "https://api.imgur.com" and imageBase "https://i.imgur.com".
func NewImgurStorage(clientID, apiBase, imageBase string, log *slog.Logger) (*ImgurStorage, error) {
	if clientID == "" {
		return nil, fmt.Errorf("imgur: client id is required")
	}
	return &ImgurStorage{
		client:    &http.Client{Timeout: 30 * time.Second},
		clientID:  clientID,
		apiBase:   strings.TrimRight(apiBase, "/"),
		imageBase: strings.TrimRight(imageBase, "/"),
		maxFetch:  MaxObjectSize,
		log:       log,
	}, nil
}

type imgurResponse struct {
	Data struct {
		ID         string `json:"id"`
		Link       string `json:"link"`
		DeleteHash string `json:"deletehash"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Upload posts the base64-encoded image with its display name.
func (s *ImgurStorage) Upload(ctx context.Context, data []byte, displayName string) (MediaObject, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("image", base64.StdEncoding.EncodeToString(data)); err != nil {
		return MediaObject{}, fmt.Errorf("%w: build body: %v", ErrUploadFailed, err)
	}
	if err := mw.WriteField("name", displayName); err != nil {
		return MediaObject{}, fmt.Errorf("%w: build body: %v", ErrUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return MediaObject{}, fmt.Errorf("%w: build body: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/3/image", &body)
	if err != nil {
		return MediaObject{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Authorization", "Client-ID "+s.clientID)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	s.log.Debug("imgur: uploading image", "name", displayName, "size", len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return MediaObject{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return MediaObject{}, fmt.Errorf("%w: imgur responded %d", ErrUploadFailed, resp.StatusCode)
	}

	var out imgurResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MediaObject{}, fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if out.Data.ID == "" || out.Data.DeleteHash == "" {
		return MediaObject{}, fmt.Errorf("%w: incomplete response", ErrUploadFailed)
	}

	s.log.Info("imgur: image uploaded", "remote_id", out.Data.ID, "link", out.Data.Link)
	return MediaObject{
		RemoteID:      out.Data.ID,
		DisplayName:   displayName,
		Link:          out.Data.Link,
		RemovalHandle: out.Data.DeleteHash,
	}, nil
}

// ResolveRetrievalURL returns "<imageBase>/<id>.jpg".
func (s *ImgurStorage) ResolveRetrievalURL(remoteID string) (string, error) {
	if err := ValidateRemoteID(remoteID); err != nil {
		return "", err
	}
	return s.imageBase + "/" + remoteID + ".jpg", nil
}

// Fetch downloads the image at url, refusing bodies over MaxObjectSize.
func (s *ImgurStorage) Fetch(ctx context.Context, url string) (Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Content{}, fmt.Errorf("%w: %s responded %d", ErrFetchFailed, url, resp.StatusCode)
	}

	data, err := readLimited(resp.Body, s.maxFetch)
	if err != nil {
		return Content{}, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	return Content{Bytes: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Delete removes the image identified by its deletehash.
func (s *ImgurStorage) Delete(ctx context.Context, removalHandle string) error {
	if removalHandle == "" {
		return fmt.Errorf("%w: empty removal handle", ErrDeleteFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.apiBase+"/3/image/"+removalHandle, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	req.Header.Set("Authorization", "Client-ID "+s.clientID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: imgur responded %d", ErrDeleteFailed, resp.StatusCode)
	}

	s.log.Info("imgur: image deleted")
	return nil
}
