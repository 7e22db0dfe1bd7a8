package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the external certificate issuance service that anchors
// certificates on chain. The contract itself lives behind that service; this
// client only submits issuance requests and reads back the minted handle.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type IssueRequest struct {
	StudentID    uint    `json:"studentId"`
	StudentName  string  `json:"studentName"`
	CourseName   string  `json:"courseName"`
	ExamPublicID string  `json:"examPublicId"`
	SubmissionID string  `json:"submissionId"`
	Score        float64 `json:"score"`
	MetadataURL  string  `json:"metadataUrl"`
	OutdateTime  string  `json:"outdateTime,omitempty"`
}

// CertificateHandle identifies a minted certificate on chain.
type CertificateHandle struct {
	TokenID         string `json:"tokenId"`
	TransactionHash string `json:"transactionHash"`
	MetadataHash    string `json:"metadataHash"`
}

type issuerError struct {
	Message string `json:"message"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IssueCertificate submits one issuance request. Not safely repeatable on the
// issuer side, so callers must dedupe before invoking it.
func (c *Client) IssueCertificate(ctx context.Context, req IssueRequest) (*CertificateHandle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/certificates/issue", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("issuer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var ie issuerError
		if json.Unmarshal(respBody, &ie) == nil && ie.Message != "" {
			return nil, fmt.Errorf("issuer returned %d: %s", resp.StatusCode, ie.Message)
		}
		return nil, fmt.Errorf("issuer returned %d", resp.StatusCode)
	}

	var handle CertificateHandle
	if err := json.Unmarshal(respBody, &handle); err != nil {
		return nil, fmt.Errorf("decode issuer response: %w", err)
	}
	if handle.TokenID == "" {
		return nil, fmt.Errorf("issuer response missing tokenId")
	}
	return &handle, nil
}

// VerifyCertificate checks a minted certificate against the chain by token id.
func (c *Client) VerifyCertificate(ctx context.Context, tokenID string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/certificates/"+tokenID+"/verify", nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("issuer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("issuer returned %d", resp.StatusCode)
	}

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Valid, nil
}
