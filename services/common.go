package services

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/getsentry/sentry-go"
)

var allowedImageExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif", ".webp"}

var extensionMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".heif": "image/heif",
	".webp": "image/webp",
}

func IsAllowedImageExtension(filename string) bool {
	return slices.Contains(allowedImageExtensions, strings.ToLower(filepath.Ext(filename)))
}

// MIMETypeForFilename maps an upload filename to the MIME type sent to the
// model, defaulting to jpeg when the extension is unknown.
func MIMETypeForFilename(filename string) string {
	if mime, ok := extensionMIMETypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mime
	}
	return "image/jpeg"
}

func StrPointer(str string) *string {
	if str == "" {
		return nil
	}
	return &str
}

func ReadFileFromUrl(url string) ([]byte, error) {
	httpClient := &http.Client{}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	// Set headers to prevent caching
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch file, status code: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	return content, nil
}

func GetEnv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}

func CreateTempFile(data []byte, filename string) (string, error) {
	ext := filepath.Ext(filename)
	tempFile, err := os.CreateTemp("", "temp-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer tempFile.Close()
	fmt.Println("Byte length:", len(data))
	if _, err := tempFile.Write(data); err != nil {
		return "", fmt.Errorf("failed to write to temp file: %v", err)
	}

	return tempFile.Name(), nil
}

// ZipGarmentImage is one valid image extracted from a batch upload archive.
type ZipGarmentImage struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ExtractZipGarmentImages pulls the image files out of a batch upload zip.
// Only root-level files are processed; invalid entries are reported and
// skipped rather than failing the batch.
func ExtractZipGarmentImages(zipBytes []byte, zipFileName string, userID uint) ([]ZipGarmentImage, error) {
	zipPath, err := CreateTempFile(zipBytes, zipFileName)
	if err != nil {
		return nil, fmt.Errorf("error creating temp zip file: %w", err)
	}
	defer os.Remove(zipPath)

	zipReader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("error opening zip file: %w", err)
	}
	defer zipReader.Close()

	if len(zipReader.File) == 0 {
		return nil, fmt.Errorf("zip file is empty")
	}
	if len(zipReader.File) > 20 {
		return nil, fmt.Errorf("zip file contains more than 20 files")
	}

	var images []ZipGarmentImage
	for _, file := range zipReader.File {
		// Skip directories and non-root files
		if file.FileInfo().IsDir() || strings.Contains(file.Name, "/") || strings.Contains(file.Name, "\\") {
			continue
		}

		if !IsAllowedImageExtension(file.Name) {
			sentry.CaptureException(fmt.Errorf("[User: %v] file %s is not a valid image file", userID, file.Name))
			continue
		}
		if file.UncompressedSize64 > 20*1024*1024 {
			return nil, fmt.Errorf("[User: %v] file %s is larger than 20MB", userID, file.Name)
		}

		f, err := file.Open()
		if err != nil {
			sentry.CaptureException(fmt.Errorf("[User: %v] error reading file %s from zip: %w", userID, file.Name, err))
			continue
		}

		imgBytes, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			sentry.CaptureException(fmt.Errorf("[User: %v] error reading image bytes %s: %w", userID, file.Name, err))
			continue
		}

		images = append(images, ZipGarmentImage{
			Name:     strings.TrimSuffix(file.Name, filepath.Ext(file.Name)),
			MIMEType: MIMETypeForFilename(file.Name),
			Data:     imgBytes,
		})
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no valid image files found in zip")
	}
	return images, nil
}
