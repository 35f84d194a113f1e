// Package contentstore pins file bytes to IPFS through Pinata. The registry
// never stores content itself; clients upload here first and then claim the
// returned hash on chain.
package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
)

// PinResult is returned to the uploader.
type PinResult struct {
	ContentHash string `json:"ipfsHash"`
	URI         string `json:"ipfsUrl"`
	FileName    string `json:"fileName"`
}

type PinataConfig struct {
	APIURL     string
	APIKey     string
	SecretKey  string
	GatewayURL string
	Timeout    time.Duration
}

type Pinata struct {
	cfg    PinataConfig
	client *http.Client
}

func NewPinata(cfg PinataConfig) *Pinata {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return &Pinata{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// URI maps a content hash to its gateway URL.
func (p *Pinata) URI(contentHash string) string {
	if contentHash == "" {
		return ""
	}
	return p.cfg.GatewayURL + "/ipfs/" + contentHash
}

func upstream(format string, args ...any) error {
	return apperr.New(apperr.KindUnavailable, apperr.CodeUpstreamFailure, format, args...)
}

// Pin streams body to Pinata as a multipart file upload.
func (p *Pinata) Pin(ctx context.Context, fileName, contentType string, body io.Reader) (*PinResult, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, apperr.Malformed("empty filename")
	}
	if p.cfg.APIKey == "" || p.cfg.SecretKey == "" {
		return nil, upstream("content store is not configured")
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFile(form, fileName, contentType, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, pr)
	if err != nil {
		return nil, fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("pinata_api_key", p.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Sugar.Errorf("Failed to reach content store: %v", err)
		return nil, upstream("failed to upload to IPFS")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Sugar.Errorf("Content store returned %d: %s", resp.StatusCode, detail)
		return nil, upstream("failed to upload to IPFS (status %d)", resp.StatusCode)
	}

	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.IpfsHash == "" {
		logger.Sugar.Errorf("Content store returned an unreadable body: %v", err)
		return nil, upstream("content store returned no hash")
	}

	logger.Sugar.Infof("Pinned %s as %s", fileName, out.IpfsHash)
	return &PinResult{ContentHash: out.IpfsHash, URI: p.URI(out.IpfsHash), FileName: fileName}, nil
}

func writeFile(form *multipart.Writer, fileName, contentType string, body io.Reader) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return form.Close()
}
