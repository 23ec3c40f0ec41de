package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/identity"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	faceEndpoint        = "/embed/face"
)

// Client is a Matcher backed by a face-embedding server. The server detects
// faces in the uploaded image and returns one embedding per face.
type Client struct {
	baseURL      string
	distance     DistanceFunc
	maxImageSize int
	client       *http.Client
}

// NewClient creates an embedding-server matcher. A nil distance selects the
// euclidean metric; maxImageSize <= 0 disables downscaling before upload.
func NewClient(baseURL string, distance DistanceFunc, maxImageSize int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if distance == nil {
		distance = EuclideanDistance
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		distance:     distance,
		maxImageSize: maxImageSize,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// ExtractDescriptors uploads the image and returns one descriptor per detected face.
func (c *Client) ExtractDescriptors(ctx context.Context, image []byte) ([]identity.Descriptor, error) {
	if c.maxImageSize > 0 {
		resized, err := ResizeImage(image, c.maxImageSize)
		if err != nil {
			return nil, err
		}
		image = resized
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, image)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	descriptors := make([]identity.Descriptor, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d returned an empty embedding", f.FaceIndex)
		}
		descriptors = append(descriptors, identity.Descriptor(f.Embedding))
	}
	return descriptors, nil
}

// Distance compares two descriptors with the configured metric.
func (c *Client) Distance(a, b identity.Descriptor) float64 {
	return c.distance(a, b)
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
