// Package dlc decodes ".dlc" container files: a base64 ciphertext
// prefix plus an 88-character base64 trailer key, requiring an online
// key-exchange call before the payload can be decrypted into a list
// of mega.nz URLs.
package dlc

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	minContainerSize = 100
	keyTrailerLength = 88
	maxRetries       = 3

	keyExchangeEndpoint = "https://service.jdownloader.org/dlcrypt/service.php"
	userAgent           = "JDownloader/2.0 (megadl/1.0)"

	// rateLimitSentinel is the key-exchange service's rc body value that
	// signals the caller has been rate limited; it must be detected and
	// surfaced rather than retried.
	rateLimitSentinel = "2YVhzRFdjR2dDQy9JL25aVXFjQ1RPZ"
)

// jdownloaderKey is the fixed 16-byte AES-128-ECB key the key-exchange
// service's response is wrapped under. It is format-mandated, not a
// secret megadl controls.
var jdownloaderKey = []byte{0x44, 0x7e, 0x78, 0x73, 0x51, 0xe6, 0x0e, 0x2c, 0x6a, 0x96, 0xb3, 0x96, 0x4b, 0xe0, 0xc9, 0xbd}

var urlTagRe = regexp.MustCompile(`(?s)<url>(.*?)</url>`)
var rcTagRe = regexp.MustCompile(`(?s)<rc>(.*?)</rc>`)

// ErrRateLimited indicates the key-exchange service rejected the
// request because of rate limiting. The caller should drop this
// container rather than retry.
var ErrRateLimited = errors.New("dlc: key exchange service rate limited this request")

// Decoder decodes .dlc containers, caching key-exchange results for
// the lifetime of the process.
type Decoder struct {
	client *retryablehttp.Client

	mu    sync.Mutex
	cache map[string]string // trailer -> payload key
}

// NewDecoder builds a Decoder using a retrying HTTP client configured
// for the key-exchange service's exponential backoff schedule
// (1s, 2s, 4s over up to 3 retries after the first attempt).
func NewDecoder() *Decoder {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.RetryWaitMin = 1 * time.Second
	c.RetryWaitMax = 4 * time.Second
	c.Logger = nil
	return &Decoder{client: c, cache: make(map[string]string)}
}

// Decode runs the full .dlc pipeline on raw container text, returning
// the sorted, deduplicated list of mega.nz URLs it contains. Every
// step fails soft per spec: on any error, Decode returns that error
// and emits no URLs.
func (d *Decoder) Decode(ctx context.Context, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < minContainerSize {
		return nil, fmt.Errorf("dlc: container too short (%d bytes)", len(raw))
	}

	trailer := raw[len(raw)-keyTrailerLength:]
	prefix := raw[:len(raw)-keyTrailerLength]

	if _, err := base64.StdEncoding.DecodeString(trailer); err != nil {
		return nil, fmt.Errorf("dlc: invalid trailer: %w", err)
	}
	cipherBytes, err := base64.StdEncoding.DecodeString(prefix)
	if err != nil {
		return nil, fmt.Errorf("dlc: invalid payload: %w", err)
	}

	payloadKey, err := d.exchangeKey(ctx, trailer)
	if err != nil {
		return nil, err
	}

	xml, err := decryptPayload(cipherBytes, payloadKey)
	if err != nil {
		return nil, fmt.Errorf("dlc: payload decryption failed: %w", err)
	}

	return extractURLs(xml), nil
}

// exchangeKey performs the online key-exchange call for trailer,
// returning the 16-character payload key, using a process-lifetime
// cache keyed by trailer.
func (d *Decoder) exchangeKey(ctx context.Context, trailer string) (string, error) {
	d.mu.Lock()
	if key, ok := d.cache[trailer]; ok {
		d.mu.Unlock()
		return key, nil
	}
	d.mu.Unlock()

	form := url.Values{
		"destType": {"jdtc6"},
		"srcType":  {"dlc"},
		"data":     {trailer},
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", keyExchangeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("dlc: build key exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dlc: key exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("dlc: reading key exchange response: %w", err)
	}

	sub := rcTagRe.FindStringSubmatch(buf.String())
	if sub == nil {
		return "", errors.New("dlc: key exchange response missing <rc> body")
	}
	rcBody := strings.TrimSpace(sub[1])
	if rcBody == rateLimitSentinel {
		return "", ErrRateLimited
	}

	payloadKey, err := decodeServiceKey(rcBody)
	if err != nil {
		return "", fmt.Errorf("dlc: decoding service key: %w", err)
	}

	d.mu.Lock()
	d.cache[trailer] = payloadKey
	d.mu.Unlock()

	return payloadKey, nil
}

// decodeServiceKey base64-decodes the rc body, AES-128-ECB decrypts
// it under the fixed JDownloader key, strips trailing zero bytes,
// base64-decodes again, and returns the first 16 UTF-8 characters as
// the payload key.
func decodeServiceKey(rcBody string) (string, error) {
	enc, err := base64.StdEncoding.DecodeString(rcBody)
	if err != nil {
		return "", err
	}
	if len(enc) == 0 || len(enc)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(jdownloaderKey)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(enc))
	for off := 0; off < len(enc); off += aes.BlockSize {
		block.Decrypt(plain[off:off+aes.BlockSize], enc[off:off+aes.BlockSize])
	}
	plain = bytes.TrimRight(plain, "\x00")

	decoded, err := base64.StdEncoding.DecodeString(string(plain))
	if err != nil {
		return "", err
	}
	// The service key is taken as the first 16 UTF-8 characters, not
	// bytes: a multi-byte rune in the decoded text would otherwise
	// produce a key one byte short of what the service actually used.
	runes := []rune(string(decoded))
	if len(runes) < 16 {
		return "", errors.New("decoded service key too short")
	}
	return string(runes[:16]), nil
}

// decryptPayload AES-128-CBC decrypts ciphertext under a key/IV both
// equal to the 16-byte ASCII payload key, trying PKCS#7 padding first
// and falling back to no padding, per the format's known quirks.
func decryptPayload(ciphertext []byte, payloadKey string) (string, error) {
	if len(payloadKey) != 16 {
		return "", errors.New("payload key must be 16 bytes")
	}
	keyIV := []byte(payloadKey)

	block, err := aes.NewCipher(keyIV)
	if err != nil {
		return "", err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext not block-aligned")
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, keyIV).CryptBlocks(plain, ciphertext)

	if unpadded, err := pkcs7Unpad(plain); err == nil {
		plain = unpadded
	}
	// NUL trimming is format-mandated regardless of which padding path
	// was taken.
	if i := bytes.IndexByte(plain, 0); i >= 0 {
		plain = plain[:i]
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(plain)))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// extractURLs finds every <url> body in xml, base64-decodes it,
// keeps only mega.nz URLs, and returns them sorted and deduplicated.
func extractURLs(xml string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, sub := range urlTagRe.FindAllStringSubmatch(xml, -1) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sub[1]))
		if err != nil {
			continue
		}
		u := string(decoded)
		if !strings.HasPrefix(u, "http://mega.nz/") && !strings.HasPrefix(u, "https://mega.nz/") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	sort.Strings(out)
	return out
}
